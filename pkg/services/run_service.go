package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atelier-ai/atelier-engine/pkg/apperrors"
	"github.com/atelier-ai/atelier-engine/pkg/eventbus"
	"github.com/atelier-ai/atelier-engine/pkg/metrics"
	"github.com/atelier-ai/atelier-engine/pkg/models"
	"github.com/atelier-ai/atelier-engine/pkg/repositories"
)

// RunService governs the run lifecycle: pending -> running -> completed
// or failed, and pending -> rejected. Status is the single source of
// truth and every transition is a compare-and-set in the repository, so
// concurrent duplicate transitions resolve to exactly one winner; losers
// observe apperrors.ErrInvalidTransition and should treat it as "already
// handled". Every transition publishes a RunChanged event.
type RunService interface {
	// Propose creates a run in pending status. It does not touch the
	// graph; proposed work is only described, never applied, until the
	// run completes.
	Propose(ctx context.Context, projectID uuid.UUID, runType models.RunType, descriptor models.RunDescriptor, inputRefs models.EntityRefSet) (*models.Run, error)

	Get(ctx context.Context, projectID, runID uuid.UUID) (*models.Run, error)
	List(ctx context.Context, projectID uuid.UUID, status *models.RunStatus) ([]models.Run, error)

	// Launch accepts a pending run for execution. Exactly-once effective:
	// of N concurrent launches one wins, the rest get
	// apperrors.ErrInvalidTransition.
	Launch(ctx context.Context, projectID, runID uuid.UUID) (*models.Run, error)

	// Reject declines a pending run. No graph mutation ever occurs for a
	// rejected run.
	Reject(ctx context.Context, projectID, runID uuid.UUID) (*models.Run, error)

	// Complete applies the worker's outputs and finishes the run
	// atomically. If any part of the output set cannot be applied the run
	// stays running and the error is an *apperrors.CommitError; the
	// worker may retry or escalate to Fail.
	Complete(ctx context.Context, projectID, runID uuid.UUID, outputs models.RunOutputs) (*models.Run, error)

	// Fail finishes a running run without applying anything.
	Fail(ctx context.Context, projectID, runID uuid.UUID, reason string) (*models.Run, error)

	// Heartbeat records worker liveness for a running run.
	Heartbeat(ctx context.Context, projectID, runID uuid.UUID) error
}

type runService struct {
	runs   repositories.RunRepository
	bus    *eventbus.Bus
	logger *zap.Logger
}

// NewRunService creates a new run service.
func NewRunService(runs repositories.RunRepository, bus *eventbus.Bus, logger *zap.Logger) RunService {
	return &runService{
		runs:   runs,
		bus:    bus,
		logger: logger.Named("runs"),
	}
}

var _ RunService = (*runService)(nil)

func (s *runService) Propose(ctx context.Context, projectID uuid.UUID, runType models.RunType, descriptor models.RunDescriptor, inputRefs models.EntityRefSet) (*models.Run, error) {
	if !models.IsValidRunType(runType) {
		return nil, fmt.Errorf("%w: invalid run type %q", apperrors.ErrBadReference, runType)
	}

	run := &models.Run{
		ProjectID:           projectID,
		Type:                runType,
		RunName:             descriptor.RunName,
		PlanDescription:     descriptor.PlanDescription,
		QuestionsForUser:    descriptor.QuestionsForUser,
		ConfigDefaultsDescr: descriptor.ConfigDefaultsDescr,
		InputRefs:           inputRefs,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to propose run: %w", err)
	}

	s.logger.Info("run proposed",
		zap.String("project_id", projectID.String()),
		zap.String("run_id", run.ID.String()),
		zap.String("type", string(runType)))

	metrics.RunTransitions.WithLabelValues(string(models.RunStatusPending)).Inc()

	return run, nil
}

func (s *runService) Get(ctx context.Context, projectID, runID uuid.UUID) (*models.Run, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil || run.ProjectID != projectID {
		return nil, apperrors.ErrNotFound
	}
	return run, nil
}

func (s *runService) List(ctx context.Context, projectID uuid.UUID, status *models.RunStatus) ([]models.Run, error) {
	runs, err := s.runs.List(ctx, projectID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

func (s *runService) Launch(ctx context.Context, projectID, runID uuid.UUID) (*models.Run, error) {
	return s.transition(ctx, projectID, runID, models.RunStatusPending, models.RunStatusRunning, nil)
}

func (s *runService) Reject(ctx context.Context, projectID, runID uuid.UUID) (*models.Run, error) {
	return s.transition(ctx, projectID, runID, models.RunStatusPending, models.RunStatusRejected, nil)
}

func (s *runService) Fail(ctx context.Context, projectID, runID uuid.UUID, reason string) (*models.Run, error) {
	return s.transition(ctx, projectID, runID, models.RunStatusRunning, models.RunStatusFailed, &reason)
}

// transition performs one compare-and-set status move and publishes the
// resulting event. The CAS runs before any read so a racing duplicate
// cannot observe a stale status and still win.
func (s *runService) transition(ctx context.Context, projectID, runID uuid.UUID, from, to models.RunStatus, failureReason *string) (*models.Run, error) {
	if !from.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s does not move to %s", apperrors.ErrInvalidTransition, from, to)
	}

	swapped, err := s.runs.Transition(ctx, projectID, runID, from, to, failureReason)
	if err != nil {
		return nil, err
	}
	if !swapped {
		// Distinguish a missing run from an illegal transition for the
		// caller's error surface.
		run, err := s.runs.GetByID(ctx, runID)
		if err != nil {
			return nil, err
		}
		if run == nil || run.ProjectID != projectID {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("%w: run %s is %s, expected %s", apperrors.ErrInvalidTransition, runID, run.Status, from)
	}

	s.logger.Info("run transitioned",
		zap.String("project_id", projectID.String()),
		zap.String("run_id", runID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)))

	metrics.RunTransitions.WithLabelValues(string(to)).Inc()

	// Publish off the swap itself; the event must not depend on the
	// follow-up read succeeding.
	s.bus.Publish(eventbus.RunChanged{
		RunID:     runID,
		ProjectID: projectID,
		OldStatus: from,
		NewStatus: to,
	})

	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, apperrors.ErrNotFound
	}

	return run, nil
}

func (s *runService) Complete(ctx context.Context, projectID, runID uuid.UUID, outputs models.RunOutputs) (*models.Run, error) {
	run, err := s.runs.CompleteWithOutputs(ctx, projectID, runID, outputs)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, apperrors.ErrInvalidTransition) {
			return nil, err
		}
		// The transaction rolled back: nothing was applied and the run is
		// still running. Surface that contract explicitly.
		return nil, &apperrors.CommitError{RunID: runID.String(), Cause: err}
	}
	if run == nil || run.ProjectID != projectID {
		return nil, apperrors.ErrNotFound
	}

	s.logger.Info("run completed",
		zap.String("project_id", projectID.String()),
		zap.String("run_id", runID.String()),
		zap.Int("output_entities", len(outputs.Entities)),
		zap.Int("output_edges", len(outputs.Edges)))

	metrics.RunTransitions.WithLabelValues(string(models.RunStatusCompleted)).Inc()
	s.bus.Publish(eventbus.RunChanged{
		RunID:     runID,
		ProjectID: projectID,
		OldStatus: models.RunStatusRunning,
		NewStatus: models.RunStatusCompleted,
	})
	if len(outputs.Entities) > 0 || len(outputs.Edges) > 0 {
		s.bus.Publish(eventbus.GraphChanged{ProjectID: projectID})
	}

	return run, nil
}

func (s *runService) Heartbeat(ctx context.Context, projectID, runID uuid.UUID) error {
	alive, err := s.runs.Heartbeat(ctx, projectID, runID)
	if err != nil {
		return err
	}
	if alive {
		return nil
	}

	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil || run.ProjectID != projectID {
		return apperrors.ErrNotFound
	}
	return fmt.Errorf("%w: run %s is %s, expected %s", apperrors.ErrInvalidTransition, runID, run.Status, models.RunStatusRunning)
}
