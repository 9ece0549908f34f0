package noteservice

import (
	"context"
	"fmt"

	"github.com/starford/ansuz/internal/anki"
	"github.com/starford/ansuz/internal/apperr"
)

// NoteRequest is one candidate note in a bulk create.
type NoteRequest struct {
	ModelName string            `json:"model_name"`
	Fields    map[string]string `json:"fields"`
	Tags      []string          `json:"tags,omitempty"`
}

// CreatedNote is an accepted bulk-create item with its assigned id.
type CreatedNote struct {
	Index  int               `json:"index"`
	NoteID int64             `json:"note_id"`
	Fields map[string]string `json:"fields"`
}

// RejectedNote is a bulk-create item the store refused, with the
// store's reason (duplicate or validation detail).
type RejectedNote struct {
	Index     int               `json:"index"`
	ModelName string            `json:"model_name"`
	Fields    map[string]string `json:"fields"`
	Tags      []string          `json:"tags"`
	Reason    string            `json:"error"`
}

// BulkCreateResult aggregates per-item outcomes of one reconciliation.
type BulkCreateResult struct {
	TotalAttempted int            `json:"total_attempted"`
	Created        []CreatedNote  `json:"successful_notes"`
	Rejected       []RejectedNote `json:"failed_notes"`
}

// BulkCreate reconciles a batch of note requests against one deck.
//
// The batch is validated for shape first; a malformed item aborts the
// whole call before any store traffic. The store's canAdd check then
// classifies duplicates and validation failures without mutating
// anything, and only the addable remainder is submitted in a single
// addNotes call. A transport or store failure on either call aborts the
// reconciliation; there is no partial retry.
func (s *Service) BulkCreate(ctx context.Context, deck string, requests []NoteRequest) (*BulkCreateResult, error) {
	if len(requests) == 0 {
		return nil, fmt.Errorf("%w: no notes provided", apperr.ErrInvalidInput)
	}

	inputs := make([]anki.NoteInput, len(requests))
	for i, req := range requests {
		if req.ModelName == "" || len(req.Fields) == 0 {
			return nil, fmt.Errorf("%w: note %d missing required model_name or fields", apperr.ErrInvalidInput, i+1)
		}
		tags := req.Tags
		if tags == nil {
			tags = []string{}
		}
		inputs[i] = anki.NoteInput{
			DeckName:  deck,
			ModelName: req.ModelName,
			Fields:    req.Fields,
			Tags:      tags,
		}
	}

	canAdd, err := s.client.CanAddNotes(ctx, inputs)
	if err != nil {
		return nil, err
	}
	if len(canAdd) != len(inputs) {
		return nil, fmt.Errorf("anki canAddNotes: got %d results for %d notes", len(canAdd), len(inputs))
	}

	result := &BulkCreateResult{
		TotalAttempted: len(requests),
		Created:        []CreatedNote{},
		Rejected:       []RejectedNote{},
	}

	var addable []anki.NoteInput
	var addableIdx []int
	for i, check := range canAdd {
		if check.CanAdd {
			addable = append(addable, inputs[i])
			addableIdx = append(addableIdx, i)
			continue
		}
		result.Rejected = append(result.Rejected, RejectedNote{
			Index:     i,
			ModelName: requests[i].ModelName,
			Fields:    requests[i].Fields,
			Tags:      inputs[i].Tags,
			Reason:    check.Error,
		})
	}

	if len(addable) == 0 {
		return result, nil
	}

	// The only mutation in a reconciliation: one addNotes call for the
	// pre-validated remainder.
	ids, err := s.client.AddNotes(ctx, addable)
	if err != nil {
		return nil, err
	}
	for i, id := range ids {
		if i >= len(addableIdx) {
			break
		}
		origin := addableIdx[i]
		if id == nil {
			result.Rejected = append(result.Rejected, RejectedNote{
				Index:     origin,
				ModelName: requests[origin].ModelName,
				Fields:    requests[origin].Fields,
				Tags:      inputs[origin].Tags,
				Reason:    "store refused the note at add time",
			})
			continue
		}
		result.Created = append(result.Created, CreatedNote{
			Index:  origin,
			NoteID: *id,
			Fields: requests[origin].Fields,
		})
	}
	return result, nil
}

// UpdateRequest is one item in a bulk update. A nil Tags slice keeps
// the note's existing tags.
type UpdateRequest struct {
	NoteID int64             `json:"note_id"`
	Fields map[string]string `json:"fields"`
	Tags   []string          `json:"tags,omitempty"`
}

// UpdatedNote is a completed bulk-update item.
type UpdatedNote struct {
	NoteID        int64    `json:"note_id"`
	UpdatedFields []string `json:"updated_fields"`
}

// FailedUpdate is a bulk-update item that could not be applied.
type FailedUpdate struct {
	Index  int    `json:"index"`
	NoteID int64  `json:"note_id"`
	Reason string `json:"error"`
}

// BulkUpdateResult aggregates per-item outcomes of a bulk update.
type BulkUpdateResult struct {
	TotalAttempted int            `json:"total_attempted"`
	Updated        []UpdatedNote  `json:"successful_updates"`
	Failed         []FailedUpdate `json:"failed_updates"`
}

// BulkUpdate applies each update individually. Unlike BulkCreate there
// is no batched store call for updates, so one item's failure (a bad
// shape, a missing id, a store error) is recorded and the remaining
// items still run.
func (s *Service) BulkUpdate(ctx context.Context, updates []UpdateRequest) (*BulkUpdateResult, error) {
	if len(updates) == 0 {
		return nil, fmt.Errorf("%w: no updates provided", apperr.ErrInvalidInput)
	}

	result := &BulkUpdateResult{
		TotalAttempted: len(updates),
		Updated:        []UpdatedNote{},
		Failed:         []FailedUpdate{},
	}
	for i, update := range updates {
		if update.NoteID == 0 || len(update.Fields) == 0 {
			result.Failed = append(result.Failed, FailedUpdate{
				Index:  i,
				NoteID: update.NoteID,
				Reason: "missing required note_id or fields",
			})
			continue
		}
		fields, err := s.UpdateNote(ctx, update.NoteID, update.Fields, update.Tags)
		if err != nil {
			result.Failed = append(result.Failed, FailedUpdate{
				Index:  i,
				NoteID: update.NoteID,
				Reason: err.Error(),
			})
			continue
		}
		result.Updated = append(result.Updated, UpdatedNote{NoteID: update.NoteID, UpdatedFields: fields})
	}
	return result, nil
}
