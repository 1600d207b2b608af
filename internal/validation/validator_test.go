package validation_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/alex-user-go/tripdata/internal/search/types"
	"github.com/alex-user-go/tripdata/internal/validation"
)

func TestStruct_Query(t *testing.T) {
	valid := types.Query{Location: "Paris", Budget: 100, Travelers: 2, Duration: 3}

	tests := []struct {
		name      string
		mutate    func(q *types.Query)
		wantErr   bool
		wantField string
	}{
		{
			name:   "valid",
			mutate: func(q *types.Query) {},
		},
		{
			name:      "missing location",
			mutate:    func(q *types.Query) { q.Location = "" },
			wantErr:   true,
			wantField: "location",
		},
		{
			name:      "negative budget",
			mutate:    func(q *types.Query) { q.Budget = -1 },
			wantErr:   true,
			wantField: "budget",
		},
		{
			name:      "zero travelers",
			mutate:    func(q *types.Query) { q.Travelers = 0 },
			wantErr:   true,
			wantField: "travelers",
		},
		{
			name:      "duration too long",
			mutate:    func(q *types.Query) { q.Duration = 400 },
			wantErr:   true,
			wantField: "duration",
		},
		{
			name:      "interest too long",
			mutate:    func(q *types.Query) { q.Interests = []string{strings.Repeat("x", 101)} },
			wantErr:   true,
			wantField: "interests[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := valid
			tt.mutate(&q)

			err := validation.Struct(q)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Struct() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}

			var verr *validation.Error
			if !errors.As(err, &verr) {
				t.Fatalf("expected *validation.Error, got %T", err)
			}
			if !strings.HasPrefix(err.Error(), tt.wantField+" ") {
				t.Errorf("message %q should start with %q", err.Error(), tt.wantField)
			}
		})
	}
}
