package repository

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	authmanagement "github.com/MHerszak/authentication-management"
)

// UserRecord is the bun model behind the reference store.
type UserRecord struct {
	bun.BaseModel    `bun:"table:users,alias:usr"`
	ID               uuid.UUID         `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email            string            `bun:"email,nullzero,unique" json:"email,omitempty"`
	Username         string            `bun:"username,nullzero,unique" json:"username,omitempty"`
	Phone            string            `bun:"phone_number,nullzero" json:"phone_number,omitempty"`
	PasswordHash     string            `bun:"password_hash" json:"-"`
	IsVerified       bool              `bun:"is_verified,notnull" json:"is_verified"`
	VerifyToken      string            `bun:"verify_token,nullzero" json:"-"`
	VerifyShortToken string            `bun:"verify_short_token,nullzero" json:"-"`
	VerifyExpires    *time.Time        `bun:"verify_expires,nullzero" json:"-"`
	VerifyChanges    map[string]string `bun:"verify_changes,type:jsonb" json:"-"`
	ResetToken       string            `bun:"reset_token,nullzero" json:"-"`
	ResetShortToken  string            `bun:"reset_short_token,nullzero" json:"-"`
	ResetExpires     *time.Time        `bun:"reset_expires,nullzero" json:"-"`
	Metadata         map[string]any    `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt        *time.Time        `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt        *time.Time        `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// DefaultIdentityColumns maps identity field names to user columns.
var DefaultIdentityColumns = map[string]string{
	"email":    "email",
	"username": "username",
	"phone":    "phone_number",
}

var tokenColumns = map[string]string{
	authmanagement.FieldVerifyToken:      "verify_token",
	authmanagement.FieldVerifyShortToken: "verify_short_token",
	authmanagement.FieldResetToken:       "reset_token",
	authmanagement.FieldResetShortToken:  "reset_short_token",
	authmanagement.FieldID:               "id",
}

// ToUser converts the record into the view the engines work on, naming
// identity fields after DefaultIdentityColumns.
func (r *UserRecord) ToUser() *authmanagement.User {
	return r.toUser(DefaultIdentityColumns)
}

// identityValue reads an identity column.
func (r *UserRecord) identityValue(col string) (string, bool) {
	switch col {
	case "email":
		return r.Email, true
	case "username":
		return r.Username, true
	case "phone_number":
		return r.Phone, true
	}
	return "", false
}

// toUser builds the engine view with identity fields keyed by columns
// (field name to column name).
func (r *UserRecord) toUser(columns map[string]string) *authmanagement.User {
	if r == nil {
		return nil
	}

	identity := map[string]string{}
	for field, col := range columns {
		if value, ok := r.identityValue(col); ok && value != "" {
			identity[field] = value
		}
	}

	changes := authmanagement.Changes{}
	for k, v := range r.VerifyChanges {
		changes[k] = v
	}

	u := &authmanagement.User{
		Identity:      identity,
		Attributes:    r.Metadata,
		PasswordHash:  r.PasswordHash,
		IsVerified:    r.IsVerified,
		VerifyChanges: changes,
		Verify: authmanagement.Tokens{
			Long:    r.VerifyToken,
			Short:   r.VerifyShortToken,
			Expires: r.VerifyExpires,
		},
		Reset: authmanagement.Tokens{
			Long:    r.ResetToken,
			Short:   r.ResetShortToken,
			Expires: r.ResetExpires,
		},
	}
	if r.ID != uuid.Nil {
		u.ID = r.ID.String()
	}
	return u
}

// applyUser copies the verification state of u onto the record.
func (r *UserRecord) applyUser(u *authmanagement.User) {
	r.IsVerified = u.IsVerified
	r.VerifyToken = u.Verify.Long
	r.VerifyShortToken = u.Verify.Short
	r.VerifyExpires = u.Verify.Expires
	r.VerifyChanges = map[string]string(u.VerifyChanges.Clone())
	r.ResetToken = u.Reset.Long
	r.ResetShortToken = u.Reset.Short
	r.ResetExpires = u.Reset.Expires
}

// BeforeCreate runs on the engine view of a record before it is inserted.
// Service.AddVerification has this shape.
type BeforeCreate func(ctx context.Context, user *authmanagement.User) error

// Users is a bun backed authmanagement.Store.
type Users struct {
	repository.Repository[*UserRecord]
	db        *bun.DB
	columns   map[string]string
	pageLimit int
	useHashid bool
	now       func() time.Time
}

var (
	_ authmanagement.Store              = (*Users)(nil)
	_ authmanagement.ConditionalPatcher = (*Users)(nil)
)

type UsersOption func(*Users)

// WithIdentityColumns overrides the identity field to column mapping.
func WithIdentityColumns(columns map[string]string) UsersOption {
	return func(u *Users) {
		if len(columns) == 0 {
			return
		}
		u.columns = make(map[string]string, len(columns))
		for k, v := range columns {
			u.columns[k] = v
		}
	}
}

// WithPageLimit caps the rows returned by Find.
func WithPageLimit(limit int) UsersOption {
	return func(u *Users) {
		if limit > 1 {
			u.pageLimit = limit
		}
	}
}

// WithHashid derives record ids from the email so ids are stable across
// environments.
func WithHashid() UsersOption {
	return func(u *Users) {
		u.useHashid = true
	}
}

// WithUsersClock injects the clock used for updated_at.
func WithUsersClock(now func() time.Time) UsersOption {
	return func(u *Users) {
		if now != nil {
			u.now = now
		}
	}
}

func NewUsers(db *bun.DB, opts ...UsersOption) *Users {
	repo := repository.NewRepository[*UserRecord](db, repository.ModelHandlers[*UserRecord]{
		NewRecord: func() *UserRecord { return &UserRecord{} },
		GetID: func(r *UserRecord) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *UserRecord, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	users := &Users{
		Repository: repo,
		db:         db,
		pageLimit:  10,
		now:        time.Now,
	}
	WithIdentityColumns(DefaultIdentityColumns)(users)

	for _, opt := range opts {
		if opt != nil {
			opt(users)
		}
	}

	return users
}

func (u *Users) column(field string) (string, bool) {
	if col, ok := tokenColumns[field]; ok {
		return col, true
	}
	col, ok := u.columns[field]
	return col, ok
}

// recordNotFound keeps repository.ErrRecordNotFound as the cause so
// repository.IsRecordNotFound matches.
func recordNotFound(id string) error {
	return goerrors.Wrap(repository.ErrRecordNotFound, goerrors.CategoryNotFound, "user not found").
		WithCode(goerrors.CodeNotFound).
		WithMetadata(map[string]any{"id": id})
}

var errUnknownField = goerrors.New("unknown user field", goerrors.CategoryBadInput).
	WithTextCode("UNKNOWN_USER_FIELD")

// Find implements authmanagement.Store. Every query field must map to a known
// column. Results are paginated, Total is the full match count.
func (u *Users) Find(ctx context.Context, query authmanagement.Query) (authmanagement.FindResult, error) {
	return u.FindTx(ctx, u.db, query)
}

func (u *Users) FindTx(ctx context.Context, tx bun.IDB, query authmanagement.Query) (authmanagement.FindResult, error) {
	records := []*UserRecord{}
	q := tx.NewSelect().Model(&records)

	for _, field := range sortedFields(query) {
		col, ok := u.column(field)
		if !ok {
			return nil, errUnknownField.Clone().WithMetadata(map[string]any{"field": field})
		}
		q = q.Where("?TableAlias.? = ?", bun.Ident(col), query[field])
	}

	total, err := q.Limit(u.pageLimit).ScanAndCount(ctx)
	if err != nil {
		return nil, err
	}

	page := &authmanagement.Page{
		Total: total,
		Limit: u.pageLimit,
		Data:  make([]*authmanagement.User, 0, len(records)),
	}
	for _, r := range records {
		page.Data = append(page.Data, r.toUser(u.columns))
	}
	return page, nil
}

// Patch implements authmanagement.Store.
func (u *Users) Patch(ctx context.Context, id string, patch authmanagement.Patch) error {
	return u.PatchTx(ctx, u.db, id, patch, nil)
}

// PatchIf implements authmanagement.ConditionalPatcher.
func (u *Users) PatchIf(ctx context.Context, id string, patch authmanagement.Patch, cond authmanagement.Condition) error {
	return u.PatchTx(ctx, u.db, id, patch, &cond)
}

// PatchTx applies patch to the record id, guarded by cond when given.
func (u *Users) PatchTx(ctx context.Context, tx bun.IDB, id string, patch authmanagement.Patch, cond *authmanagement.Condition) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return recordNotFound(id)
	}

	sets, err := u.patchColumns(patch)
	if err != nil {
		return err
	}

	q := tx.NewUpdate().
		Model((*UserRecord)(nil)).
		Set("? = ?", bun.Ident("updated_at"), u.now())
	for _, col := range sortedFields(sets) {
		q = q.Set("? = ?", bun.Ident(col), sets[col])
	}
	q = q.Where("? = ?", bun.Ident("id"), uid)

	if cond != nil {
		col, ok := u.column(cond.Field)
		if !ok {
			return errUnknownField.Clone().WithMetadata(map[string]any{"field": cond.Field})
		}
		q = q.Where("? = ?", bun.Ident(col), cond.Value)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	if cond != nil {
		return authmanagement.ErrPatchConditionFailed.Clone().WithMetadata(map[string]any{
			"id":    id,
			"field": cond.Field,
		})
	}
	return recordNotFound(id)
}

func (u *Users) patchColumns(p authmanagement.Patch) (map[string]any, error) {
	sets := map[string]any{}

	if p.IsVerified != nil {
		sets["is_verified"] = *p.IsVerified
	}
	if p.PasswordHash != nil {
		sets["password_hash"] = *p.PasswordHash
	}
	for field, value := range p.Identity {
		col, ok := u.columns[field]
		if !ok {
			return nil, errUnknownField.Clone().WithMetadata(map[string]any{"field": field})
		}
		sets[col] = value
	}
	if p.Verify != nil {
		setTokens(sets, *p.Verify, "verify_token", "verify_short_token", "verify_expires")
	}
	if p.VerifyChanges != nil {
		raw, err := json.Marshal(p.VerifyChanges)
		if err != nil {
			return nil, err
		}
		sets["verify_changes"] = string(raw)
	}
	if p.Reset != nil {
		setTokens(sets, *p.Reset, "reset_token", "reset_short_token", "reset_expires")
	}

	return sets, nil
}

func setTokens(sets map[string]any, t authmanagement.Tokens, longCol, shortCol, expiresCol string) {
	sets[longCol] = nullString(t.Long)
	sets[shortCol] = nullString(t.Short)
	if t.Expires == nil {
		sets[expiresCol] = nil
	} else {
		sets[expiresCol] = t.Expires.UTC()
	}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Register inserts a new record after running the before create hooks on its
// engine view.
func (u *Users) Register(ctx context.Context, record *UserRecord, hooks ...BeforeCreate) (*UserRecord, error) {
	return u.RegisterTx(ctx, u.db, record, hooks...)
}

func (u *Users) RegisterTx(ctx context.Context, tx bun.IDB, record *UserRecord, hooks ...BeforeCreate) (*UserRecord, error) {
	if record == nil {
		return nil, goerrors.New("user record is nil", goerrors.CategoryBadInput)
	}

	if record.ID == uuid.Nil && u.useHashid && record.Email != "" {
		if id, err := hashid.NewUUID(record.Email); err == nil {
			record.ID = id
		}
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	view := record.toUser(u.columns)
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, view); err != nil {
			return nil, err
		}
	}
	record.applyUser(view)

	created, err := u.Repository.CreateTx(ctx, tx, record)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
	}
	return created, nil
}

// CreateSchema creates the users table when missing.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateTable().
		Model((*UserRecord)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func sortedFields[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
