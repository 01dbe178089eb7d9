package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/approvhq/approv-backend/internal/models"
)

// ErrProjectNotFound возвращается, когда проект не найден.
var ErrProjectNotFound = errors.New("project not found")

// ProjectRepository отвечает за работу с проектами.
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository создаёт экземпляр репозитория.
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create создаёт проект.
func (r *ProjectRepository) Create(ctx context.Context, project *models.Project) error {
	query := `
		INSERT INTO projects (org_id, client_id, name, stage, status, address)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	if err := r.db.QueryRowxContext(
		ctx,
		query,
		project.OrgID,
		project.ClientID,
		project.Name,
		project.Stage,
		project.Status,
		project.Address,
	).Scan(&project.ID, &project.CreatedAt, &project.UpdatedAt); err != nil {
		return fmt.Errorf("project repository: create %w", err)
	}

	return nil
}

// GetByID возвращает проект организации с именем клиента.
func (r *ProjectRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Project, error) {
	var project models.Project
	query := `
		SELECT p.*, c.name AS client_name
		FROM projects p
		JOIN clients c ON c.id = p.client_id
		WHERE p.org_id = $1 AND p.id = $2
	`

	if err := r.db.GetContext(ctx, &project, query, orgID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("project repository: get by id %w", err)
	}

	return &project, nil
}

// ListProjectsParams задаёт фильтры списка проектов.
type ListProjectsParams struct {
	ClientID *uuid.UUID
	Stage    string
	Status   string
	Limit    int
	Offset   int
}

// List возвращает проекты организации, новые первыми.
func (r *ProjectRepository) List(ctx context.Context, orgID uuid.UUID, params ListProjectsParams) ([]models.Project, error) {
	query := `
		SELECT p.*, c.name AS client_name
		FROM projects p
		JOIN clients c ON c.id = p.client_id
		WHERE p.org_id = $1
	`
	args := []interface{}{orgID}
	argIndex := 2

	if params.ClientID != nil {
		query += fmt.Sprintf(" AND p.client_id = $%d", argIndex)
		args = append(args, *params.ClientID)
		argIndex++
	}

	if params.Stage != "" {
		query += fmt.Sprintf(" AND p.stage = $%d", argIndex)
		args = append(args, params.Stage)
		argIndex++
	}

	if params.Status != "" {
		query += fmt.Sprintf(" AND p.status = $%d", argIndex)
		args = append(args, params.Status)
		argIndex++
	}

	query += " ORDER BY p.created_at DESC"

	if params.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, params.Limit)
		argIndex++
	}

	if params.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, params.Offset)
	}

	var projects []models.Project
	if err := r.db.SelectContext(ctx, &projects, query, args...); err != nil {
		return nil, fmt.Errorf("project repository: list %w", err)
	}

	return projects, nil
}

// Update обновляет название, стадию и адрес проекта.
func (r *ProjectRepository) Update(ctx context.Context, project *models.Project) error {
	query := `
		UPDATE projects
		SET name = $3, stage = $4, status = $5, address = $6, updated_at = NOW()
		WHERE org_id = $1 AND id = $2
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		project.OrgID,
		project.ID,
		project.Name,
		project.Stage,
		project.Status,
		project.Address,
	)
	if err != nil {
		return fmt.Errorf("project repository: update %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("project repository: update rows affected %w", err)
	}

	if rowsAffected == 0 {
		return ErrProjectNotFound
	}

	return nil
}

// CountActive возвращает количество активных проектов организации.
func (r *ProjectRepository) CountActive(ctx context.Context, orgID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM projects WHERE org_id = $1 AND status = $2`

	if err := r.db.GetContext(ctx, &count, query, orgID, models.ProjectStatusActive); err != nil {
		return 0, fmt.Errorf("project repository: count active %w", err)
	}

	return count, nil
}
