package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/campuscode/autograder-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Class{},
		&models.Enrollment{},
		&models.Question{},
		&models.TestCase{},
		&models.Submission{},
		&models.PlagiarismReport{},
		&models.PlagiarismPair{},
	))
	return db
}

// fakeStore records object operations in memory.
type fakeStore struct {
	objects map[string]string
	putErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string]string{}}
}

func (f *fakeStore) Put(_ context.Context, key string, reader io.Reader, _ int64, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.objects[key] = string(data)
	return nil
}

func (f *fakeStore) Remove(_ context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func (f *fakeStore) Bucket() string {
	return "test-bucket"
}

// fakeRunner grades by comparing the source against each expected output:
// a test passes when the source contains the expected string.
type fakeRunner struct {
	err error
}

func (f *fakeRunner) Run(_ context.Context, _ models.Language, source string, cases []models.TestCase) ([]models.TestCaseRun, error) {
	if f.err != nil {
		return nil, f.err
	}

	runs := make([]models.TestCaseRun, 0, len(cases))
	for i, tc := range cases {
		status := models.TestRunFailed
		if strings.Contains(source, tc.Expected) {
			status = models.TestRunPassed
		}
		runs = append(runs, models.TestCaseRun{
			TestCase: i + 1,
			Status:   status,
			Input:    tc.Input,
			Expected: tc.Expected,
		})
	}
	return runs, nil
}

// seedClass creates an instructor, a class, and an enrolled student.
func seedClass(t *testing.T, db *gorm.DB) (instructor, student models.User, class models.Class) {
	t.Helper()

	instructor = models.User{Name: "Dr. Reyes", Email: "reyes@example.edu", Role: models.RoleInstructor}
	require.NoError(t, db.Create(&instructor).Error)

	student = models.User{Name: "Sam Lee", Email: "sam@example.edu", Role: models.RoleStudent}
	require.NoError(t, db.Create(&student).Error)

	class = models.Class{InstructorID: instructor.ID}
	require.NoError(t, db.Create(&class).Error)
	require.NoError(t, db.Create(&models.Enrollment{ClassID: class.ID, StudentID: student.ID}).Error)

	return instructor, student, class
}

func seedQuestion(t *testing.T, db *gorm.DB, classID uint, status models.QuestionStatus) models.Question {
	t.Helper()

	question := models.Question{
		ClassID:   classID,
		Text:      "Print the sum of two integers.",
		Status:    status,
		Threshold: models.DefaultSimilarityThreshold,
		TestCases: []models.TestCase{
			{Input: "1 2", Expected: "3", Position: 0},
			{Input: "10 5", Expected: "15", Position: 1},
		},
	}
	require.NoError(t, db.Create(&question).Error)
	return question
}
