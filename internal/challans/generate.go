package challans

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/odyssey-erp/papertrail/internal/references"
	"github.com/odyssey-erp/papertrail/internal/shared"
)

// Assignment pins the box that ships a requested material.
type Assignment struct {
	MaterialID string `validate:"required"`
	BoxID      string `validate:"required"`
}

// GenerateInput describes a challan derived from a material request.
type GenerateInput struct {
	RequestID   string       `validate:"required"`
	Number      string       `validate:"omitempty,max=64"`
	Assignments []Assignment `validate:"dive"`
}

// GenerateFromRequest creates a challan carrying the request's item quantities and links
// it to the request. The insert and the link commit together or not at all.
func (s *Service) GenerateFromRequest(ctx context.Context, actor shared.Principal, input GenerateInput) (Challan, error) {
	if err := requireCompany(actor, "generates"); err != nil {
		return Challan{}, err
	}
	if err := shared.ValidateStruct(input); err != nil {
		return Challan{}, err
	}
	req, err := s.requests.Get(ctx, actor, input.RequestID)
	if err != nil {
		return Challan{}, err
	}
	if !req.Convertible() {
		if req.ChallanID != nil {
			return Challan{}, fmt.Errorf("%w: request %s already produced challan %s", shared.ErrInvalidState, req.Number, req.ChallanID)
		}
		return Challan{}, fmt.Errorf("%w: request %s is %s", shared.ErrInvalidState, req.Number, req.Status)
	}

	assigned := make(map[uuid.UUID]string, len(input.Assignments))
	for _, a := range input.Assignments {
		materialID, err := references.Parse(references.KindMaterial, a.MaterialID)
		if err != nil {
			return Challan{}, err
		}
		assigned[materialID] = a.BoxID
	}

	create := CreateInput{Number: input.Number, SupplierID: req.SupplierID.String()}
	for _, item := range req.Items {
		boxID, ok := assigned[item.MaterialID]
		if !ok {
			located, err := s.boxes.BoxForMaterial(ctx, item.MaterialID)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					return Challan{}, &shared.ReferenceError{
						Kind: string(references.KindBox),
						ID:   item.MaterialID.String(),
						Err:  fmt.Errorf("%w: no box holds this material", shared.ErrReferenceNotFound),
					}
				}
				return Challan{}, fmt.Errorf("challans: locate box: %w", err)
			}
			boxID = located.String()
		}
		create.Boxes = append(create.Boxes, BoxInput{BoxID: boxID, Quantity: item.Quantity})
	}

	ch, err := s.build(ctx, actor, create)
	if err != nil {
		return Challan{}, err
	}
	ch.RequestID = &req.ID

	var created Challan
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if created, err = s.repo.Create(ctx, ch); err != nil {
			return err
		}
		_, err = s.requests.LinkChallan(ctx, req, created.ID)
		return err
	})
	if err != nil {
		return Challan{}, err
	}
	s.logger.Info("challan generated from material request",
		slog.String("id", created.ID.String()),
		slog.String("request_id", req.ID.String()),
		slog.Int("boxes", len(created.Boxes)),
	)
	return created, nil
}
