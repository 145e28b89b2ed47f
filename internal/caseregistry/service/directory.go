package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/casebill/internal/caseregistry/domain"
	"github.com/smallbiznis/casebill/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Cases   repository.Repository[domain.Case]
	Clients repository.Repository[domain.Client]
	Workers repository.Repository[domain.Worker]
}

type directory struct {
	log     *zap.Logger
	cases   repository.Repository[domain.Case]
	clients repository.Repository[domain.Client]
	workers repository.Repository[domain.Worker]
}

func NewDirectory(p Params) domain.Directory {
	return &directory{
		log:     p.Log.Named("caseregistry.directory"),
		cases:   p.Cases,
		clients: p.Clients,
		workers: p.Workers,
	}
}

func (d *directory) GetCase(ctx context.Context, caseID snowflake.ID) (*domain.CaseDetails, error) {
	if caseID == 0 {
		return nil, domain.ErrCaseNotFound
	}
	c, err := d.cases.FindOne(ctx, &domain.Case{ID: caseID})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, domain.ErrCaseNotFound
	}

	client, err := d.clients.FindOne(ctx, &domain.Client{ID: c.ClientID})
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, domain.ErrClientNotFound
	}

	details := &domain.CaseDetails{Case: *c, Client: *client}
	if c.AssignedWorkerID != nil && *c.AssignedWorkerID != 0 {
		worker, err := d.workers.FindOne(ctx, &domain.Worker{ID: *c.AssignedWorkerID})
		if err != nil {
			return nil, err
		}
		if worker == nil {
			d.log.Warn("assigned worker missing", zap.String("case_id", caseID.String()))
		}
		details.AssignedWorker = worker
	}
	return details, nil
}

func (d *directory) GetWorker(ctx context.Context, workerID snowflake.ID) (*domain.Worker, error) {
	if workerID == 0 {
		return nil, domain.ErrWorkerNotFound
	}
	worker, err := d.workers.FindOne(ctx, &domain.Worker{ID: workerID})
	if err != nil {
		return nil, err
	}
	if worker == nil {
		return nil, domain.ErrWorkerNotFound
	}
	return worker, nil
}
