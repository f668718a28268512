package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/models"
)

func setupGradingTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Problem{}, &models.Submission{}, &models.EvaluationDetail{}))
	return db
}

func TestProblemRepositoryCreateAndList(t *testing.T) {
	db := setupGradingTestDB(t)
	repo := NewProblemRepository(db)
	ctx := context.Background()

	first := models.Problem{Title: "Binary Search", Description: "Find x", Rubric: "Binary Search Problem"}
	second := models.Problem{Title: "Two Sum", Description: "Find pair", Rubric: "Two Sum"}
	require.NoError(t, repo.Create(ctx, &first))
	require.NoError(t, repo.Create(ctx, &second))

	problems, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, problems, 2)
	require.Equal(t, "Binary Search", problems[0].Title)

	found, err := repo.GetByID(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, "Two Sum", found.Title)

	_, err = repo.GetByID(ctx, 999)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSubmissionRepositorySaveResultReplacesDetails(t *testing.T) {
	db := setupGradingTestDB(t)
	problems := NewProblemRepository(db)
	repo := NewSubmissionRepository(db)
	ctx := context.Background()

	problem := models.Problem{Title: "Binary Search", Description: "Find x", Rubric: "r"}
	require.NoError(t, problems.Create(ctx, &problem))

	submission := models.Submission{UserID: 7, ProblemID: problem.ID, Code: "code", Language: "java", Status: models.SubmissionStatusPending}
	require.NoError(t, repo.Create(ctx, &submission))

	submission.Status = models.SubmissionStatusCompleted
	submission.TotalScore = 2
	submission.MaxScore = 3
	submission.Analysis = datatypes.JSON(`{"approach":"Solution 1"}`)
	details := []models.EvaluationDetail{
		{CriterionIndex: 2, MaxScore: 1, ScoreObtained: 0, Feedback: "missing"},
		{CriterionIndex: 1, MaxScore: 2, ScoreObtained: 2, Feedback: "ok"},
	}
	require.NoError(t, repo.SaveResult(ctx, &submission, details))
	require.NoError(t, repo.SaveResult(ctx, &submission, details[:1]))

	stored, err := repo.GetByID(ctx, submission.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusCompleted, stored.Status)
	require.Equal(t, "Binary Search", stored.Problem.Title)
	require.Len(t, stored.Details, 1)
	require.Equal(t, 2, stored.Details[0].CriterionIndex)
	require.JSONEq(t, `{"approach":"Solution 1"}`, string(stored.Analysis))
}

func TestSubmissionRepositoryListFilters(t *testing.T) {
	db := setupGradingTestDB(t)
	repo := NewSubmissionRepository(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.Problem{ID: 1, Title: "P", Description: "d", Rubric: "r"}).Error)
	for i, status := range []string{models.SubmissionStatusPending, models.SubmissionStatusCompleted, models.SubmissionStatusPending} {
		userID := uint(1)
		if i == 2 {
			userID = 2
		}
		require.NoError(t, repo.Create(ctx, &models.Submission{UserID: userID, ProblemID: 1, Code: "c", Language: "python", Status: status}))
	}

	userID := uint(1)
	mine, err := repo.List(ctx, SubmissionFilter{UserID: &userID})
	require.NoError(t, err)
	require.Len(t, mine, 2)

	pending := models.SubmissionStatusPending
	queued, err := repo.List(ctx, SubmissionFilter{Status: &pending})
	require.NoError(t, err)
	require.Len(t, queued, 2)

	limited, err := repo.List(ctx, SubmissionFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
}
