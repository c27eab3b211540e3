package service

import (
	"context"

	"github.com/noah-isme/oelp-api/internal/grading"
	"github.com/noah-isme/oelp-api/internal/models"
	"github.com/noah-isme/oelp-api/internal/repository"
)

// loadLabScopes resolves every lab together with its question ids, in lab order.
func loadLabScopes(ctx context.Context, labs repository.LabRepository, questions repository.QuestionRepository) ([]models.Lab, []grading.LabScope, error) {
	labList, err := labs.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	refs, err := questions.ListRefs(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	return labList, buildLabScopes(labList, refs), nil
}

func buildLabScopes(labs []models.Lab, refs []repository.QuestionRef) []grading.LabScope {
	byLab := make(map[uint][]uint, len(labs))
	for _, ref := range refs {
		byLab[ref.LabID] = append(byLab[ref.LabID], ref.ID)
	}

	scopes := make([]grading.LabScope, 0, len(labs))
	for _, lab := range labs {
		scopes = append(scopes, grading.LabScope{
			ID:          lab.ID,
			Title:       lab.Title,
			QuestionIDs: byLab[lab.ID],
		})
	}
	return scopes
}

func toSubmissionRecords(rows []repository.SubmissionRow) []grading.SubmissionRecord {
	records := make([]grading.SubmissionRecord, 0, len(rows))
	for _, row := range rows {
		score := row.TotalScore
		records = append(records, grading.SubmissionRecord{
			ID:          row.ID,
			StudentID:   row.StudentID,
			QuestionID:  row.QuestionID,
			LabID:       row.LabID,
			Status:      row.Status,
			Score:       &score,
			SubmittedAt: row.SubmittedAt,
		})
	}
	return records
}

func toProgressRecords(rows []models.StudentProgress) []grading.ProgressRecord {
	records := make([]grading.ProgressRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, grading.ProgressRecord{QuestionID: row.QuestionID, Status: row.Status})
	}
	return records
}
