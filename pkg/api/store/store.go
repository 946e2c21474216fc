package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethpandaops/portfolioor/pkg/config"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a unique field is already taken.
	ErrAlreadyExists = errors.New("already exists")
	// ErrStale is returned when a conditional update matched no row
	// because the record changed underneath the caller.
	ErrStale = errors.New("record changed concurrently")
)

// Store provides persistence for API resources.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// User directory.
	GetUserByID(ctx context.Context, id uint) (*User, error)
	GetUserByUID(ctx context.Context, uid string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	CreateUser(ctx context.Context, user *User) error
	UpdateUserRole(ctx context.Context, id uint, role string) error

	// Session CRUD.
	CreateSession(ctx context.Context, session *Session) error
	GetSessionByToken(ctx context.Context, token string) (*Session, error)
	UpdateSessionLastActive(ctx context.Context, id uint, t time.Time) error
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context) error

	// Local provider credentials.
	CreateCredential(ctx context.Context, cred *Credential) error
	GetCredentialByEmail(ctx context.Context, email string) (*Credential, error)

	// Blog posts.
	CreatePost(ctx context.Context, post *BlogPost) error
	GetPost(ctx context.Context, id string) (*BlogPost, error)
	ListPosts(ctx context.Context, filter PostFilter) ([]BlogPost, error)
	UpdatePost(ctx context.Context, post *BlogPost) error
	TransitionPost(ctx context.Context, post *BlogPost, from string) error
	DeletePost(ctx context.Context, id string) error

	// Project visibility.
	GetProjectVisibility(ctx context.Context, owner string) (map[string]bool, error)
	SaveProjectVisibility(ctx context.Context, owner string, visibility map[string]bool) error
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var (
		dialector gorm.Dialector
		err       error
	)

	gormCfg := &gorm.Config{
		Logger:         logger.Discard,
		TranslateError: true,
	}

	switch s.cfg.Driver {
	case config.DatabaseDriverSQLite:
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case config.DatabaseDriverPostgres:
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	s.db, err = gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	if s.cfg.Driver == config.DatabaseDriverSQLite {
		// A single connection keeps :memory: databases coherent and
		// serializes writers.
		sqlDB, err := s.db.DB()
		if err != nil {
			return fmt.Errorf("getting underlying db: %w", err)
		}

		sqlDB.SetMaxOpenConns(1)
	}

	if err := s.db.WithContext(ctx).AutoMigrate(
		&User{},
		&Session{},
		&Credential{},
		&BlogPost{},
		&ProjectSettings{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), isUniqueConstraintError(err):
		return ErrAlreadyExists
	default:
		return err
	}
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}

// --- User directory ---

func (s *store) GetUserByID(
	ctx context.Context, id uint,
) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, fmt.Errorf("getting user by id: %w", translate(err))
	}

	return &user, nil
}

func (s *store) GetUserByUID(
	ctx context.Context, uid string,
) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).
		Where("uid = ?", uid).
		First(&user).Error; err != nil {
		return nil, fmt.Errorf("getting user by uid: %w", translate(err))
	}

	return &user, nil
}

func (s *store) GetUserByEmail(
	ctx context.Context, email string,
) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).
		Where("email = ?", NormalizeEmail(email)).
		First(&user).Error; err != nil {
		return nil, fmt.Errorf("getting user by email: %w", translate(err))
	}

	return &user, nil
}

func (s *store) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := s.db.WithContext(ctx).
		Order("id ASC").
		Find(&users).Error; err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	return users, nil
}

func (s *store) CreateUser(ctx context.Context, user *User) error {
	user.Email = NormalizeEmail(user.Email)

	if user.Role == "" {
		user.Role = RoleUser
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("creating user: %w", translate(err))
	}

	return nil
}

func (s *store) UpdateUserRole(
	ctx context.Context, id uint, role string,
) error {
	result := s.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", id).
		Update("role", role)
	if result.Error != nil {
		return fmt.Errorf("updating user role: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("updating user role: %w", ErrNotFound)
	}

	return nil
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// --- Session CRUD ---

func (s *store) CreateSession(
	ctx context.Context, session *Session,
) error {
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	return nil
}

func (s *store) GetSessionByToken(
	ctx context.Context, token string,
) (*Session, error) {
	var session Session
	if err := s.db.WithContext(ctx).
		Where("token = ?", token).
		First(&session).Error; err != nil {
		return nil, fmt.Errorf("getting session by token: %w", translate(err))
	}

	return &session, nil
}

func (s *store) UpdateSessionLastActive(
	ctx context.Context, id uint, t time.Time,
) error {
	if err := s.db.WithContext(ctx).
		Model(&Session{}).
		Where("id = ?", id).
		Update("last_active_at", t).Error; err != nil {
		return fmt.Errorf("updating session last active: %w", err)
	}

	return nil
}

func (s *store) DeleteSession(ctx context.Context, token string) error {
	if err := s.db.WithContext(ctx).
		Where("token = ?", token).
		Delete(&Session{}).Error; err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	return nil
}

func (s *store) DeleteExpiredSessions(ctx context.Context) error {
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", time.Now().UTC()).
		Delete(&Session{})
	if result.Error != nil {
		return fmt.Errorf("deleting expired sessions: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.log.WithField("count", result.RowsAffected).
			Debug("Cleaned up expired sessions")
	}

	return nil
}

// --- Credentials ---

func (s *store) CreateCredential(
	ctx context.Context, cred *Credential,
) error {
	cred.Email = NormalizeEmail(cred.Email)

	if err := s.db.WithContext(ctx).Create(cred).Error; err != nil {
		return fmt.Errorf("creating credential: %w", translate(err))
	}

	return nil
}

func (s *store) GetCredentialByEmail(
	ctx context.Context, email string,
) (*Credential, error) {
	var cred Credential
	if err := s.db.WithContext(ctx).
		Where("email = ?", NormalizeEmail(email)).
		First(&cred).Error; err != nil {
		return nil, fmt.Errorf("getting credential: %w", translate(err))
	}

	return &cred, nil
}

// --- Blog posts ---

func (s *store) CreatePost(ctx context.Context, post *BlogPost) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}

	if post.Status == "" {
		post.Status = StatusDraft
	}

	if err := s.db.WithContext(ctx).Create(post).Error; err != nil {
		return fmt.Errorf("creating post: %w", translate(err))
	}

	return nil
}

func (s *store) GetPost(ctx context.Context, id string) (*BlogPost, error) {
	var post BlogPost
	if err := s.db.WithContext(ctx).
		Where("id = ?", id).
		First(&post).Error; err != nil {
		return nil, fmt.Errorf("getting post: %w", translate(err))
	}

	return &post, nil
}

func (s *store) ListPosts(
	ctx context.Context, filter PostFilter,
) ([]BlogPost, error) {
	q := s.db.WithContext(ctx).Model(&BlogPost{})

	if filter.PublicOnly {
		q = q.Where("published = ? AND status = ?", true, StatusApproved)
	}

	if filter.Published != nil {
		q = q.Where("published = ?", *filter.Published)
	}

	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	if filter.AuthorUID != "" {
		q = q.Where("author_uid = ?", filter.AuthorUID)
	}

	if filter.SortBySubmitted {
		q = q.Order("submitted_at DESC NULLS LAST").Order("created_at DESC")
	} else {
		q = q.Order("created_at DESC")
	}

	var posts []BlogPost
	if err := q.Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}

	return posts, nil
}

// UpdatePost overwrites every column of an existing post.
func (s *store) UpdatePost(ctx context.Context, post *BlogPost) error {
	result := s.db.WithContext(ctx).
		Model(&BlogPost{}).
		Where("id = ?", post.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(post)
	if result.Error != nil {
		return fmt.Errorf("updating post: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("updating post: %w", ErrNotFound)
	}

	return nil
}

// TransitionPost writes the moderation fields of post, but only if the
// stored status still equals from. ErrStale is returned otherwise.
func (s *store) TransitionPost(
	ctx context.Context, post *BlogPost, from string,
) error {
	post.UpdatedAt = time.Now().UTC()

	result := s.db.WithContext(ctx).
		Model(&BlogPost{}).
		Where("id = ? AND status = ?", post.ID, from).
		Select(
			"status",
			"published",
			"submitted_at",
			"reviewed_at",
			"reviewed_by",
			"rejection_reason",
			"updated_at",
		).
		Updates(post)
	if result.Error != nil {
		return fmt.Errorf("transitioning post: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("transitioning post %s from %s: %w", post.ID, from, ErrStale)
	}

	return nil
}

func (s *store) DeletePost(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&BlogPost{})
	if result.Error != nil {
		return fmt.Errorf("deleting post: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("deleting post: %w", ErrNotFound)
	}

	return nil
}

// --- Project visibility ---

// GetProjectVisibility returns the visibility map for owner, creating an
// empty record on first read.
func (s *store) GetProjectVisibility(
	ctx context.Context, owner string,
) (map[string]bool, error) {
	settings, err := s.loadProjectSettings(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("getting project settings: %w", err)
	}

	if settings.Visibility == nil {
		return map[string]bool{}, nil
	}

	return settings.Visibility, nil
}

// SaveProjectVisibility replaces the visibility map for owner wholesale.
func (s *store) SaveProjectVisibility(
	ctx context.Context, owner string, visibility map[string]bool,
) error {
	settings, err := s.loadProjectSettings(ctx, owner)
	if err != nil {
		return fmt.Errorf("saving project settings: %w", err)
	}

	settings.Visibility = make(map[string]bool, len(visibility))
	for k, v := range visibility {
		settings.Visibility[k] = v
	}

	if err := s.db.WithContext(ctx).Save(settings).Error; err != nil {
		return fmt.Errorf("saving project settings: %w", err)
	}

	return nil
}

// loadProjectSettings returns the settings row for owner, creating it
// with an empty map when missing.
func (s *store) loadProjectSettings(
	ctx context.Context, owner string,
) (*ProjectSettings, error) {
	var settings ProjectSettings

	err := s.db.WithContext(ctx).Where("owner = ?", owner).First(&settings).Error
	if err == nil {
		return &settings, nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	settings = ProjectSettings{Owner: owner, Visibility: map[string]bool{}}
	if err := s.db.WithContext(ctx).Create(&settings).Error; err != nil {
		if !errors.Is(translate(err), ErrAlreadyExists) {
			return nil, err
		}

		// Created concurrently by another request.
		if err := s.db.WithContext(ctx).Where("owner = ?", owner).First(&settings).Error; err != nil {
			return nil, err
		}
	}

	return &settings, nil
}
