package roster

import (
	"context"
	"fmt"
	"io"
	"net/mail"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/roster/core"
)

const (
	// PrefInstructionsSeen is the user preference remembering that the import instructions were shown.
	PrefInstructionsSeen = "roster.instructions_seen"

	welcomeTemplate = "student_welcome"
	welcomeSubject  = "Your student account"
)

var ErrInputTooLarge = errors.New("file too large")

// Options are the import policies. Both the class creation wizard and the roster manager
// go through the same pipeline: their differences are these flags.
type Options struct {
	Format         Format
	RequireEmail   bool
	DefaultPhone   string
	PasswordLength int
	ThrottleDelay  time.Duration
	MaxBytes       int64
	Notify         bool
}

// OptionsFromConfig reads the import policies from the app config.
func OptionsFromConfig(conf *core.Config) (Options, error) {
	format, err := ParseFormat(conf.Import.Format, FormatNaive)
	if err != nil {
		return Options{}, errors.Wrap(err, "import.format")
	}
	return Options{
		Format:         format,
		RequireEmail:   conf.Import.RequireEmail,
		DefaultPhone:   conf.Import.DefaultPhone,
		PasswordLength: conf.Import.PasswordLength,
		ThrottleDelay:  conf.Import.ThrottleDelay,
		MaxBytes:       conf.Import.MaxBytes,
		Notify:         conf.Import.Notify,
	}, nil
}

// Input is a fully read import file.
type Input struct {
	Filename string
	Format   Format // detected from Filename when empty
	Data     []byte

	// RequireEmail overrides Options.RequireEmail for this call when set.
	RequireEmail *bool
}

// Instructions tells the UI whether to open the import help, and what it should say.
type Instructions struct {
	Seen             bool               `json:"seen"`
	ShowInstructions bool               `json:"show_instructions"`
	Headers          map[Field][]string `json:"headers"`
	Required         []Field            `json:"required"`
}

type Service struct {
	repo       Repository
	mailSvc    core.EmailService
	logger     core.Logger
	opts       Options
	reconciler *Reconciler
}

func NewService(repo Repository, mailSvc core.EmailService, logger core.Logger, opts Options) *Service {
	return &Service{
		repo:    repo,
		mailSvc: mailSvc,
		logger:  logger,
		opts:    opts,
		reconciler: NewReconciler(
			repo,
			PasswordGenerator{Length: opts.PasswordLength},
			opts.ThrottleDelay,
			logger,
		),
	}
}

// ReadInput reads an upload, enforcing the configured size limit.
func (svc *Service) ReadInput(r io.Reader, filename string, format Format) (Input, error) {
	src := r
	if svc.opts.MaxBytes > 0 {
		src = io.LimitReader(r, svc.opts.MaxBytes+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return Input{}, errors.Wrap(ErrUnreadableFile, err.Error())
	}
	if svc.opts.MaxBytes > 0 && int64(len(data)) > svc.opts.MaxBytes {
		return Input{}, errors.Wrapf(ErrInputTooLarge, "limit is %d bytes", svc.opts.MaxBytes)
	}
	return Input{Filename: filename, Format: format, Data: data}, nil
}

func (svc *Service) validator(in Input) RecordValidator {
	v := RecordValidator{RequireEmail: svc.opts.RequireEmail, DefaultPhone: svc.opts.DefaultPhone}
	if in.RequireEmail != nil {
		v.RequireEmail = *in.RequireEmail
	}
	return v
}

// Preview parses and validates an import file without touching the store.
func (svc *Service) Preview(in Input) (Result, error) {
	format := in.Format
	if format == "" {
		format = DetectFormat(in.Filename, svc.opts.Format)
	}
	src, err := NewRowSource(format)
	if err != nil {
		return Result{}, err
	}
	return Parse(in.Data, src, svc.validator(in))
}

// Import previews the file then reconciles its valid records with the class.
// Invalid rows are reported, not imported; they never prevent the valid ones from being imported.
func (svc *Service) Import(ctx context.Context, schoolID, classID string, in Input) (ImportResult, error) {
	if err := checkScope(schoolID, classID); err != nil {
		return ImportResult{}, err
	}

	parsed, err := svc.Preview(in)
	if err != nil {
		return ImportResult{}, err
	}

	svc.logger.Info(fmt.Sprintf(
		"importing roster into class %s: %d valid rows, %d errors",
		classID, parsed.Summary.Valid, parsed.Summary.Invalid,
	))
	res := svc.reconciler.Reconcile(ctx, schoolID, classID, parsed.Students)
	res.Errors = parsed.Errors
	res.Warnings = parsed.Warnings
	res.Summary = parsed.Summary

	svc.logger.Info(fmt.Sprintf(
		"roster imported into class %s: %d succeeded, %d failed (%d created, %d reused, %d linked, %d already linked)",
		classID, res.SuccessCount, res.FailureCount, res.Created, res.Reused, res.Linked, res.AlreadyLinked,
	))

	svc.notify(ctx, res.Credentials)
	return res, nil
}

// notify emails their temporary password to the created students that have an email.
func (svc *Service) notify(ctx context.Context, creds []Credential) {
	if !svc.opts.Notify || svc.mailSvc == nil {
		return
	}
	msgs := make([]*core.EmailMessage, 0, len(creds))
	for _, c := range creds {
		if c.Email == "" {
			continue
		}
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{{Name: c.FullName, Address: c.Email}},
			Subject:      welcomeSubject,
			TemplateName: welcomeTemplate,
			TemplateData: c,
		})
	}
	if len(msgs) == 0 {
		return
	}
	// give the store a breather before the follow-up notifications
	if svc.opts.ThrottleDelay > 0 {
		if err := sleepWithContext(ctx, svc.opts.ThrottleDelay); err != nil {
			svc.logger.Warn("welcome emails not sent: import cancelled", err)
			return
		}
	}
	svc.mailSvc.SendMessages(msgs...)
}

// AddStudent creates a single student, strictly validated, and optionally enrolls them.
func (svc *Service) AddStudent(ctx context.Context, schoolID string, ns NewStudent) (Student, error) {
	now := NowFunc().UTC()
	st := Student{
		SchoolID:  schoolID,
		FullName:  ns.FullName,
		Email:     ns.Email,
		Phone:     ns.Phone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if st.Phone == "" {
		st.Phone = svc.validator(Input{}).defaultPhone()
	}

	pwd := ns.Password
	if pwd == "" {
		var err error
		if pwd, err = svc.reconciler.passwords.Generate(); err != nil {
			return Student{}, errors.Wrap(err, "generating password")
		}
		st.MustChangePassword = true
	}
	if err := st.SetPassword(pwd); err != nil {
		return Student{}, errors.Wrap(err, "hashing password")
	}

	st, err := svc.repo.CreateStudent(ctx, st)
	if err != nil {
		return Student{}, errors.Wrap(err, "creating student")
	}

	if ns.ClassID != "" {
		_, err = svc.repo.CreateEnrollment(ctx, Enrollment{
			SchoolID:  schoolID,
			ClassID:   ns.ClassID,
			StudentID: st.ID,
			CreatedAt: now,
		})
		if err != nil && !errors.Is(err, ErrAlreadyLinked) {
			return Student{}, errors.Wrap(err, "enrolling student")
		}
	}

	if st.MustChangePassword {
		svc.notify(ctx, []Credential{{StudentID: st.ID, FullName: st.FullName, Email: st.Email, Password: pwd}})
	}
	return st, nil
}

func (svc *Service) checkEmailUniqueness(ctx context.Context, schoolID, email string) error {
	_, err := svc.repo.GetStudentByEmail(ctx, schoolID, email)
	switch {
	case err == nil:
		return core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
	case errors.Is(err, ErrNotFound):
		return nil
	default:
		return errors.Wrap(err, "checking email uniqueness")
	}
}

// ClassStudents lists the students enrolled in a class.
func (svc *Service) ClassStudents(ctx context.Context, schoolID, classID string, ordering []core.DBOrdering) ([]Student, error) {
	if err := checkScope(schoolID, classID); err != nil {
		return nil, err
	}
	ordering, err := CleanOrdering(ordering)
	if err != nil {
		return nil, err
	}
	return svc.repo.ListClassStudents(ctx, schoolID, classID, ordering)
}

// ResetPassword sets a student's password chosen by an admin; it is no longer temporary.
func (svc *Service) ResetPassword(ctx context.Context, schoolID, email, pwd string) error {
	if !IsValidPassword(pwd) {
		return ErrPasswordTooShort
	}
	st, err := svc.repo.GetStudentByEmail(ctx, schoolID, core.CleanString(email, true /* lower */))
	if err != nil {
		return err
	}
	if err = st.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	st.MustChangePassword = false
	st.UpdatedAt = NowFunc().UTC()
	_, err = svc.repo.UpdateStudentPassword(ctx, st)
	return err
}

// Instructions returns the import help along with the user's "already seen" preference.
func (svc *Service) Instructions(ctx context.Context, userID string) (Instructions, error) {
	seen, err := svc.instructionsSeen(ctx, userID)
	if err != nil {
		return Instructions{}, err
	}
	required := []Field{FieldFullName}
	if svc.opts.RequireEmail {
		required = append(required, FieldEmail)
	}
	return Instructions{
		Seen:             seen,
		ShowInstructions: !seen,
		Headers:          Aliases(),
		Required:         required,
	}, nil
}

func (svc *Service) instructionsSeen(ctx context.Context, userID string) (bool, error) {
	val, err := svc.repo.GetPreference(ctx, userID, PrefInstructionsSeen)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	} else if err != nil {
		return false, errors.Wrap(err, "getting preference")
	}
	seen, _ := strconv.ParseBool(val)
	return seen, nil
}

// SetInstructionsSeen records whether the user has seen the import instructions.
func (svc *Service) SetInstructionsSeen(ctx context.Context, userID string, seen bool) error {
	if err := svc.repo.SetPreference(ctx, userID, PrefInstructionsSeen, strconv.FormatBool(seen)); err != nil {
		return errors.Wrap(err, "setting preference")
	}
	return nil
}

func checkScope(schoolID, classID string) error {
	var flds []core.FieldError
	if schoolID == "" {
		flds = append(flds, core.FieldError{Field: "school", Error: "school is required"})
	}
	if classID == "" {
		flds = append(flds, core.FieldError{Field: "class", Error: "class is required"})
	}
	if flds != nil {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}
