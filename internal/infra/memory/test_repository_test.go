package memory

import (
	"context"
	"testing"
	"time"

	"competition-service/internal/domain"
)

func TestTestRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		TestLoader: NewStaticTestLoader(map[string]domain.Test{
			"test-1": sampleTest(),
		}),
	}
	repo := NewTestRepository(loader, time.Minute)

	if _, err := repo.GetTest(context.Background(), "test-1"); err != nil {
		t.Fatalf("get test: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := repo.GetTest(context.Background(), "test-1"); err != nil {
		t.Fatalf("get test 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestTestRepositoryMiss(t *testing.T) {
	repo := NewTestRepository(NewStaticTestLoader(nil), time.Minute)
	if _, err := repo.GetTest(context.Background(), "nope"); err != domain.ErrTestNotFound {
		t.Fatalf("expected ErrTestNotFound, got %v", err)
	}
}

type countingLoader struct {
	TestLoader
	calls int
}

func (l *countingLoader) LoadTest(ctx context.Context, testID string) (domain.Test, error) {
	l.calls++
	return l.TestLoader.LoadTest(ctx, testID)
}

func sampleTest() domain.Test {
	return domain.Test{
		ID:    "test-1",
		Title: "Arithmetic",
		Questions: []domain.Question{
			{
				ID:    "q1",
				Title: "What is 2 + 2?",
				Type:  domain.QuestionMultipleChoice,
				Options: []domain.Option{
					{ID: "o1", Text: "3"},
					{ID: "o2", Text: "4"},
				},
				CorrectAnswers: []string{"o2"},
				Weight:         1,
			},
		},
	}
}
