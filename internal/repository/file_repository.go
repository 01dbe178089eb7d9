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

// ErrFileNotFound возвращается, когда файл не найден.
var ErrFileNotFound = errors.New("file not found")

// FileRepository хранит метаданные файлов согласований. Содержимое
// лежит в объектном хранилище, здесь только ссылки на него.
type FileRepository struct {
	db *sqlx.DB
}

// NewFileRepository создаёт экземпляр репозитория.
func NewFileRepository(db *sqlx.DB) *FileRepository {
	return &FileRepository{db: db}
}

// Create сохраняет метаданные загруженного файла.
func (r *FileRepository) Create(ctx context.Context, file *models.ApprovalFile) error {
	query := `
		INSERT INTO approval_files (approval_id, org_id, object_key, file_name, mime_type, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	if err := r.db.QueryRowxContext(
		ctx,
		query,
		file.ApprovalID,
		file.OrgID,
		file.ObjectKey,
		file.FileName,
		file.MimeType,
		file.SizeBytes,
	).Scan(&file.ID, &file.CreatedAt); err != nil {
		return fmt.Errorf("file repository: create %w", err)
	}

	return nil
}

// GetByID возвращает файл организации по идентификатору.
func (r *FileRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.ApprovalFile, error) {
	var file models.ApprovalFile
	query := `SELECT * FROM approval_files WHERE org_id = $1 AND id = $2`

	if err := r.db.GetContext(ctx, &file, query, orgID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("file repository: get by id %w", err)
	}

	return &file, nil
}

// ListByApproval возвращает файлы согласования в порядке загрузки.
func (r *FileRepository) ListByApproval(ctx context.Context, approvalID uuid.UUID) ([]models.ApprovalFile, error) {
	var files []models.ApprovalFile
	query := `SELECT * FROM approval_files WHERE approval_id = $1 ORDER BY created_at ASC`

	if err := r.db.SelectContext(ctx, &files, query, approvalID); err != nil {
		return nil, fmt.Errorf("file repository: list by approval %w", err)
	}

	return files, nil
}

// Delete удаляет метаданные файла.
func (r *FileRepository) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM approval_files WHERE org_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return fmt.Errorf("file repository: delete %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("file repository: delete rows affected %w", err)
	}

	if rowsAffected == 0 {
		return ErrFileNotFound
	}

	return nil
}
