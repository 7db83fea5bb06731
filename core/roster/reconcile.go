package roster

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/roster/core"
)

// Stage names the reconciliation step a record failed at.
type Stage string

const (
	StageLookup    Stage = "lookup"
	StageCreate    Stage = "create"
	StageLinkCheck Stage = "link_check"
	StageLink      Stage = "link"
	StageCancelled Stage = "cancelled"
)

// Failure is a record that could not be reconciled. The rest of the batch carries on.
type Failure struct {
	Row      int    `json:"row"`
	FullName string `json:"full_name"`
	Email    string `json:"email,omitempty"`
	Stage    Stage  `json:"stage"`
	Error    string `json:"error"`
}

// ImportResult is what an import reports to its caller.
type ImportResult struct {
	SuccessCount  int           `json:"success_count"`
	FailureCount  int           `json:"failure_count"`
	Created       int           `json:"created"`
	Reused        int           `json:"reused"`
	Linked        int           `json:"linked"`
	AlreadyLinked int           `json:"already_linked"`
	Failures      []Failure     `json:"failures"`
	Errors        []ImportError `json:"errors"`
	Warnings      []string      `json:"warnings"`
	Summary       Summary       `json:"summary"`

	// generated passwords of created students, for the welcome emails and the admin report
	Credentials []Credential `json:"-"`
}

func (res *ImportResult) fail(rec ImportedStudent, stage Stage, err error) {
	res.FailureCount++
	res.Failures = append(res.Failures, Failure{
		Row:      rec.Row,
		FullName: rec.FullName,
		Email:    rec.Email,
		Stage:    stage,
		Error:    err.Error(),
	})
}

// Reconciler creates or reuses students and enrolls them, one record at a time.
// There is no transaction around the batch: what was committed before a failure stays.
type Reconciler struct {
	store     Store
	passwords PasswordGenerator
	throttle  time.Duration
	logger    core.Logger
}

func NewReconciler(store Store, passwords PasswordGenerator, throttle time.Duration, logger core.Logger) *Reconciler {
	return &Reconciler{
		store:     store,
		passwords: passwords,
		throttle:  throttle,
		logger:    logger,
	}
}

// Reconcile links every record to the class. A failing record is counted and logged; it never stops the batch.
// ctx is only checked between records while throttling: once cancelled, the remaining records fail as cancelled.
func (r *Reconciler) Reconcile(ctx context.Context, schoolID, classID string, records []ImportedStudent) ImportResult {
	res := ImportResult{
		Failures: []Failure{},
		Errors:   []ImportError{},
		Warnings: []string{},
	}

	for i, rec := range records {
		if i > 0 && r.throttle > 0 {
			if err := sleepWithContext(ctx, r.throttle); err != nil {
				for _, rest := range records[i:] {
					res.fail(rest, StageCancelled, err)
				}
				r.logger.Warn(fmt.Sprintf("roster import cancelled after %d of %d records", i, len(records)), err)
				break
			}
		}

		stage, err := r.reconcileOne(ctx, schoolID, classID, rec, &res)
		if err != nil {
			res.fail(rec, stage, err)
			r.logger.Error(
				fmt.Sprintf("reconciling row %d: %s failed: %v", rec.Row, stage, err),
				err,
				map[string]interface{}{"school_id": schoolID, "class_id": classID, "row": rec.Row},
			)
			continue
		}
		res.SuccessCount++
	}
	return res
}

// reconcileOne moves one record through resolve (existing | created) then link (linked | already linked).
func (r *Reconciler) reconcileOne(ctx context.Context, schoolID, classID string, rec ImportedStudent, res *ImportResult) (Stage, error) {
	st, err := r.store.FindStudent(ctx, schoolID, rec.FullName, rec.Email)
	switch {
	case err == nil:
		res.Reused++
	case errors.Is(err, ErrNotFound):
		var cred *Credential
		if st, cred, err = r.createStudent(ctx, schoolID, rec); err != nil {
			return StageCreate, err
		}
		res.Created++
		if cred != nil {
			res.Credentials = append(res.Credentials, *cred)
		}
	default:
		return StageLookup, err
	}

	exists, err := r.store.EnrollmentExists(ctx, classID, st.ID)
	if err != nil {
		return StageLinkCheck, err
	}
	if exists {
		res.AlreadyLinked++
		return "", nil
	}

	_, err = r.store.CreateEnrollment(ctx, Enrollment{
		SchoolID:  schoolID,
		ClassID:   classID,
		StudentID: st.ID,
		CreatedAt: NowFunc().UTC(),
	})
	if errors.Is(err, ErrAlreadyLinked) { // linked concurrently since the check
		res.AlreadyLinked++
		return "", nil
	} else if err != nil {
		return StageLink, err
	}
	res.Linked++
	return "", nil
}

// createStudent persists a new student. Without a supplied password, a temporary one is generated
// and returned as a Credential so the student can be told about it.
func (r *Reconciler) createStudent(ctx context.Context, schoolID string, rec ImportedStudent) (Student, *Credential, error) {
	now := NowFunc().UTC()
	st := Student{
		SchoolID:  schoolID,
		FullName:  rec.FullName,
		Email:     rec.Email,
		Phone:     rec.Phone,
		CreatedAt: now,
		UpdatedAt: now,
	}

	pwd := rec.Password
	if pwd == "" {
		var err error
		if pwd, err = r.passwords.Generate(); err != nil {
			return Student{}, nil, errors.Wrap(err, "generating password")
		}
		st.MustChangePassword = true
	}
	if err := st.SetPassword(pwd); err != nil {
		return Student{}, nil, errors.Wrap(err, "hashing password")
	}

	st, err := r.store.CreateStudent(ctx, st)
	if err != nil {
		return Student{}, nil, err
	}
	if !st.MustChangePassword {
		return st, nil, nil
	}
	return st, &Credential{StudentID: st.ID, FullName: st.FullName, Email: st.Email, Password: pwd}, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
