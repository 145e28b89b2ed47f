// Package domain describes the case, client and worker records the billing
// engine reads. They are owned by the practice-management side of the system.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Worker struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Email     string       `gorm:"type:text" json:"email"`
	Role      string       `gorm:"type:text;not null" json:"role"`
	IsActive  bool         `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (Worker) TableName() string { return "workers" }

type Client struct {
	ID                  snowflake.ID  `gorm:"primaryKey" json:"id"`
	Name                string        `gorm:"type:text;not null" json:"name"`
	Email               string        `gorm:"type:text" json:"email"`
	PreferredCurrencyID *snowflake.ID `json:"preferred_currency_id,omitempty"`
	CreatedAt           time.Time     `gorm:"not null" json:"created_at"`
}

func (Client) TableName() string { return "clients" }

type Case struct {
	ID               snowflake.ID  `gorm:"primaryKey" json:"id"`
	Title            string        `gorm:"type:text;not null" json:"title"`
	Category         string        `gorm:"type:text;index" json:"category"`
	ClientID         snowflake.ID  `gorm:"not null;index" json:"client_id"`
	AssignedWorkerID *snowflake.ID `json:"assigned_worker_id,omitempty"`
	CreatedAt        time.Time     `gorm:"not null" json:"created_at"`
}

func (Case) TableName() string { return "cases" }

// CaseDetails is a case joined with the parties an invoice is addressed to.
type CaseDetails struct {
	Case           Case
	Client         Client
	AssignedWorker *Worker
}

// Directory is the read-only view the billing engine needs of the case registry.
type Directory interface {
	GetCase(ctx context.Context, caseID snowflake.ID) (*CaseDetails, error)
	GetWorker(ctx context.Context, workerID snowflake.ID) (*Worker, error)
}

var (
	ErrCaseNotFound   = errors.New("case_not_found")
	ErrClientNotFound = errors.New("client_not_found")
	ErrWorkerNotFound = errors.New("worker_not_found")
)
