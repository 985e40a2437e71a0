package handlers

import (
	"context"
	"errors"
	"fmt"

	"taskrelay/src/contracts"
	"taskrelay/src/db"
	"taskrelay/src/jsoncodec"
	"taskrelay/src/logger"
	"taskrelay/src/repository"
	"taskrelay/src/tasks"
	"taskrelay/src/uow"
)

// TaskHandler forwards the payload unchanged to a background task.
type TaskHandler struct {
	dispatcher tasks.Dispatcher
	task       string
}

func NewTaskHandler(dispatcher tasks.Dispatcher, task string) *TaskHandler {
	return &TaskHandler{dispatcher: dispatcher, task: task}
}

func (h *TaskHandler) Handle(ctx context.Context, payload []byte) error {
	return h.dispatcher.Dispatch(ctx, h.task, payload)
}

// SampleHandler stores contracts.SampleMessage payloads as samples.
type SampleHandler struct {
	manager *db.Manager
	logger  logger.Logger
}

func NewSampleHandler(manager *db.Manager, log logger.Logger) *SampleHandler {
	return &SampleHandler{manager: manager, logger: log.With("handler", "sample")}
}

func (h *SampleHandler) Handle(ctx context.Context, payload []byte) error {
	var msg contracts.SampleMessage
	if err := jsoncodec.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("failed to decode sample message: %w", err)
	}
	if msg.Name == "" {
		return errors.New("sample message has no name")
	}

	return uow.Run(ctx, h.manager, uow.Default(), func(ctx context.Context, u *uow.UnitOfWork) error {
		samples, err := uow.Repo[*repository.Samples](u, uow.Samples)
		if err != nil {
			return err
		}
		sample, err := samples.Create(ctx, repository.Fields{"name": msg.Name})
		if err != nil {
			return err
		}
		h.logger.Info("Stored sample", "id", sample.ID, "name", sample.Name)
		return nil
	})
}

// Default builds the registry the consumer runs with.
func Default(dispatcher tasks.Dispatcher, manager *db.Manager, log logger.Logger) (*Registry, error) {
	return NewRegistry(map[string]MessageHandler{
		contracts.TopicSample:        NewTaskHandler(dispatcher, contracts.TaskSimple),
		contracts.TopicSamplePersist: NewSampleHandler(manager, log),
	})
}
