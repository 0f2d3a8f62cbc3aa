package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"runrate/api/internal/auth"
	"runrate/api/internal/cache"
	"runrate/api/internal/config"
	"runrate/api/internal/export"
	"runrate/api/internal/rbac"
	"runrate/api/internal/report"
	"runrate/api/internal/session"
	"runrate/api/internal/store"
	"runrate/api/internal/util"
)

type Session struct {
	Token            string
	Email            string
	UserName         string
	Role             string
	JTI              string
	ExpiresAt        time.Time
	ActiveDialog     string
	EditingProjectID string
}

// ProjectView is the typed row handed to the view layer: dates parsed, a
// missing lastActivity defaulted to the zero time so unset-activity records
// sort last in recency order.
type ProjectView struct {
	ID           string                   `json:"id"`
	SupplierName string                   `json:"supplierName"`
	PORef        string                   `json:"poRef"`
	FirstContact string                   `json:"firstContact,omitempty"`
	MainPOC      string                   `json:"mainPoc"`
	Region       string                   `json:"region"`
	IsNPI        string                   `json:"isNPI"`
	BusinessArea string                   `json:"businessArea"`
	Status       string                   `json:"status"`
	Quantities   map[string]store.Quantity `json:"quantities"`
	LastActivity time.Time                `json:"lastActivity"`
}

type CommentView struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	User      string    `json:"user"`
	Timestamp time.Time `json:"timestamp"`
}

// ProjectFilter narrows the cached snapshot. Empty or "All" means no
// constraint on that dimension.
type ProjectFilter struct {
	BusinessArea string
	Region       string
	POC          string
	NPI          string
}

type ProjectInput struct {
	SupplierName string                    `json:"supplierName"`
	PORef        string                    `json:"poRef"`
	FirstContact string                    `json:"firstContact"`
	MainPOC      string                    `json:"mainPoc"`
	Region       string                    `json:"region"`
	IsNPI        string                    `json:"isNPI"`
	BusinessArea string                    `json:"businessArea"`
	Status       string                    `json:"status"`
	Quantities   map[string]store.Quantity `json:"quantities"`
}

// ProjectPatchInput carries a merge update; nil fields are left untouched.
type ProjectPatchInput struct {
	SupplierName *string                   `json:"supplierName"`
	PORef        *string                   `json:"poRef"`
	FirstContact *string                   `json:"firstContact"`
	MainPOC      *string                   `json:"mainPoc"`
	Region       *string                   `json:"region"`
	IsNPI        *string                   `json:"isNPI"`
	BusinessArea *string                   `json:"businessArea"`
	Status       *string                   `json:"status"`
	Quantities   map[string]store.Quantity `json:"quantities"`
}

type dataStore interface {
	GetUserByEmail(context.Context, string) (store.User, error)
	InsertUser(context.Context, store.User) error
	ListProjects(context.Context) ([]store.Project, error)
	GetProject(context.Context, string) (store.Project, error)
	InsertProject(context.Context, store.Project) error
	UpdateProject(context.Context, string, store.ProjectPatch) (bool, error)
	TouchProject(context.Context, string) error
	ListComments(context.Context, string) ([]store.Comment, error)
	InsertComment(context.Context, store.Comment) (store.Comment, error)
	DeleteComment(context.Context, string, string) (bool, error)
	ListLookup(context.Context, string) ([]store.LookupEntry, error)
	InsertLookup(context.Context, store.LookupEntry) error
	DeleteLookup(context.Context, string, string) (bool, error)
	Ping(ctx context.Context) error
}

type sessionStore interface {
	Save(context.Context, string, session.State) error
	Lookup(context.Context, string) (session.State, error)
	UpdateUI(context.Context, string, string, string) error
	Delete(context.Context, string) error
	Ping(context.Context) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	roles    *rbac.RoleMap
	cache    *cache.Cache
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions *session.RedisStore, roles *rbac.RoleMap) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		roles:    roles,
		cache:    cache.New(cfg.CacheTTL),
	}
}

// Bootstrap seeds the lookup collections and a local dev user on first boot so
// a fresh deployment renders usable choice controls.
func (s *Service) Bootstrap(ctx context.Context) error {
	statuses, err := s.store.ListLookup(ctx, "statuses")
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		seeds := map[string][]string{
			"statuses": {"Initial Contact", "Quotation", "PO Received", "In Production", "Delivered"},
			"regions":  {"EMEA", "Americas", "APAC"},
		}
		for kind, names := range seeds {
			for _, name := range names {
				if err := s.store.InsertLookup(ctx, store.LookupEntry{
					ID:   util.NewID("lk"),
					Kind: kind,
					Name: name,
				}); err != nil {
					return err
				}
			}
		}
	}

	if _, err := s.store.GetUserByEmail(ctx, "dev@runrate.local"); errors.Is(err, sql.ErrNoRows) {
		if err := s.store.InsertUser(ctx, store.User{
			ID:          util.NewID("usr"),
			Email:       "dev@runrate.local",
			DisplayName: "Dev",
		}); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	return nil
}

// Login verifies only that the identity exists in the credential store; the
// submitted secret is not cryptographically checked (known limitation carried
// over from the original system). The role is resolved once here and cached in
// the session for its whole lifetime.
func (s *Service) Login(ctx context.Context, email string) (Session, error) {
	identity := strings.ToLower(strings.TrimSpace(email))
	if identity == "" {
		return Session{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "email is required", nil)
	}

	user, err := s.store.GetUserByEmail(ctx, identity)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, domainError(http.StatusUnauthorized, "LOGIN_FAILED", "Unknown identity", nil)
	}
	if err != nil {
		return Session{}, err
	}

	role := s.roles.Resolve(user.Email)
	now := time.Now()
	expiresAt := now.Add(s.cfg.SessionTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:  user.Email,
		Name: user.DisplayName,
		Role: string(role),
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	if err := s.sessions.Save(ctx, auth.HashToken(token), session.State{
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        string(role),
		CreatedAt:   now,
	}); err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		Email:     user.Email,
		UserName:  user.DisplayName,
		Role:      string(role),
		JTI:       jti,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}

	state, err := s.sessions.Lookup(ctx, auth.HashToken(token))
	if errors.Is(err, session.ErrNotFound) {
		// Logged out or expired server-side: the token alone is not a session.
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:            token,
		Email:            state.Email,
		UserName:         state.DisplayName,
		Role:             state.Role,
		JTI:              claims.JTI,
		ExpiresAt:        time.Unix(claims.Exp, 0),
		ActiveDialog:     state.ActiveDialog,
		EditingProjectID: state.EditingProjectID,
	}, nil
}

// Logout deletes the whole session record; afterwards the visit is
// indistinguishable from one that never authenticated.
func (s *Service) Logout(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	return s.sessions.Delete(ctx, auth.HashToken(token))
}

func (s *Service) UpdateSessionUI(ctx context.Context, sess Session, activeDialog, editingProjectID string) error {
	return s.sessions.UpdateUI(ctx, auth.HashToken(sess.Token), activeDialog, editingProjectID)
}

func (s *Service) requireWrite(sess Session) error {
	if !rbac.Can(rbac.Normalize(sess.Role), rbac.ActionWrite) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Editor role required", nil)
	}
	return nil
}

// projects returns the cached snapshot, fetching from the store when the
// freshness window has elapsed or a write invalidated the cache.
func (s *Service) projects(ctx context.Context) ([]store.Project, error) {
	if cached, ok := s.cache.Get("projects"); ok {
		return cached.([]store.Project), nil
	}
	items, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Put("projects", items)
	return items, nil
}

func (s *Service) comments(ctx context.Context, projectID string) ([]store.Comment, error) {
	key := "comments:" + projectID
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]store.Comment), nil
	}
	items, err := s.store.ListComments(ctx, projectID)
	if err != nil {
		return nil, err
	}
	s.cache.Put(key, items)
	return items, nil
}

func (s *Service) lookup(ctx context.Context, kind string) ([]store.LookupEntry, error) {
	key := "lookup:" + kind
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]store.LookupEntry), nil
	}
	items, err := s.store.ListLookup(ctx, kind)
	if err != nil {
		return nil, err
	}
	s.cache.Put(key, items)
	return items, nil
}

// Projects returns the filtered project table in recency order.
func (s *Service) Projects(ctx context.Context, filter ProjectFilter) ([]ProjectView, error) {
	items, err := s.projects(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]ProjectView, 0, len(items))
	for _, item := range filterProjects(items, filter) {
		views = append(views, toView(item))
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].LastActivity.After(views[j].LastActivity)
	})
	return views, nil
}

func (s *Service) Comments(ctx context.Context, projectID string) ([]CommentView, error) {
	items, err := s.comments(ctx, projectID)
	if err != nil {
		return nil, err
	}
	views := make([]CommentView, 0, len(items))
	for _, item := range items {
		views = append(views, CommentView{ID: item.ID, Text: item.Text, User: item.User, Timestamp: item.Timestamp})
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Timestamp.Before(views[j].Timestamp)
	})
	return views, nil
}

// Settings returns the four sorted name lists that populate choice controls.
func (s *Service) Settings(ctx context.Context) (map[string][]string, error) {
	settings := make(map[string][]string, len(store.LookupKinds))
	for _, kind := range store.LookupKinds {
		entries, err := s.lookup(ctx, kind)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			names = append(names, entry.Name)
		}
		sort.Strings(names)
		settings[kind] = names
	}
	return settings, nil
}

func (s *Service) SettingsEntries(ctx context.Context, kind string) ([]store.LookupEntry, error) {
	if !store.IsLookupKind(kind) {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Unknown settings list", nil)
	}
	return s.lookup(ctx, kind)
}

// Summary computes the chart aggregates over the (optionally filtered)
// snapshot.
func (s *Service) Summary(ctx context.Context, businessArea string) (map[string]any, error) {
	items, err := s.projects(ctx)
	if err != nil {
		return nil, err
	}
	filtered := filterProjects(items, ProjectFilter{BusinessArea: businessArea})
	return map[string]any{
		"projectCount":      len(filtered),
		"sensorsByRegion":   report.SensorsByRegion(filtered),
		"statusCounts":      report.StatusCounts(filtered),
		"pocCounts":         report.POCCounts(filtered),
		"projectsByQuarter": report.ProjectsByQuarter(filtered),
	}, nil
}

func (s *Service) ExportCSV(ctx context.Context, filter ProjectFilter) ([]byte, error) {
	items, err := s.projects(ctx)
	if err != nil {
		return nil, err
	}
	filtered := filterProjects(items, filter)
	sort.SliceStable(filtered, func(i, j int) bool {
		return activityOf(filtered[i]).After(activityOf(filtered[j]))
	})
	return export.ProjectsCSV(filtered)
}

func (s *Service) CreateProject(ctx context.Context, sess Session, input ProjectInput) (ProjectView, error) {
	if err := s.requireWrite(sess); err != nil {
		return ProjectView{}, err
	}
	if strings.TrimSpace(input.SupplierName) == "" {
		return ProjectView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "supplierName is required", nil)
	}
	isNPI, err := normalizeNPI(input.IsNPI, "No")
	if err != nil {
		return ProjectView{}, err
	}
	businessArea, err := normalizeBusinessArea(input.BusinessArea, "External")
	if err != nil {
		return ProjectView{}, err
	}
	firstContact, err := parseDate(input.FirstContact)
	if err != nil {
		return ProjectView{}, err
	}
	quantities := input.Quantities
	if len(quantities) == 0 {
		quantities = store.DefaultQuantities()
	}

	item := store.Project{
		ID:           util.NewID("proj"),
		SupplierName: strings.TrimSpace(input.SupplierName),
		PORef:        strings.TrimSpace(input.PORef),
		FirstContact: firstContact,
		MainPOC:      strings.TrimSpace(input.MainPOC),
		Region:       strings.TrimSpace(input.Region),
		IsNPI:        isNPI,
		BusinessArea: businessArea,
		Status:       strings.TrimSpace(input.Status),
		Quantities:   quantities,
	}
	if err := s.store.InsertProject(ctx, item); err != nil {
		return ProjectView{}, err
	}
	s.cache.Invalidate()

	// Re-read so the caller sees the server-assigned lastActivity.
	created, err := s.store.GetProject(ctx, item.ID)
	if err != nil {
		return toView(item), nil
	}
	return toView(created), nil
}

func (s *Service) UpdateProject(ctx context.Context, sess Session, projectID string, input ProjectPatchInput) (ProjectView, error) {
	if err := s.requireWrite(sess); err != nil {
		return ProjectView{}, err
	}
	patch := store.ProjectPatch{
		SupplierName: input.SupplierName,
		PORef:        input.PORef,
		MainPOC:      input.MainPOC,
		Region:       input.Region,
		Status:       input.Status,
		Quantities:   input.Quantities,
	}
	if input.IsNPI != nil {
		isNPI, err := normalizeNPI(*input.IsNPI, "")
		if err != nil {
			return ProjectView{}, err
		}
		patch.IsNPI = &isNPI
	}
	if input.BusinessArea != nil {
		businessArea, err := normalizeBusinessArea(*input.BusinessArea, "")
		if err != nil {
			return ProjectView{}, err
		}
		patch.BusinessArea = &businessArea
	}
	if input.FirstContact != nil {
		firstContact, err := parseDate(*input.FirstContact)
		if err != nil {
			return ProjectView{}, err
		}
		patch.FirstContact = firstContact
	}

	found, err := s.store.UpdateProject(ctx, projectID, patch)
	if err != nil {
		return ProjectView{}, err
	}
	if !found {
		return ProjectView{}, domainError(http.StatusNotFound, "NOT_FOUND", "Project not found", nil)
	}
	s.cache.Invalidate()

	updated, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return ProjectView{}, err
	}
	return toView(updated), nil
}

// AddComment is open to any authenticated user. The comment insert and the
// parent project touch are two separate writes: if the touch fails the comment
// still persists and recency is simply not advanced.
func (s *Service) AddComment(ctx context.Context, sess Session, projectID, text string) (CommentView, error) {
	if strings.TrimSpace(text) == "" {
		return CommentView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "text is required", nil)
	}
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CommentView{}, domainError(http.StatusNotFound, "NOT_FOUND", "Project not found", nil)
		}
		return CommentView{}, err
	}

	comment, err := s.store.InsertComment(ctx, store.Comment{
		ID:        util.NewID("cmt"),
		ProjectID: projectID,
		Text:      strings.TrimSpace(text),
		User:      sess.Email,
	})
	if err != nil {
		return CommentView{}, err
	}
	if err := s.store.TouchProject(ctx, projectID); err != nil {
		log.Printf("touch project %s after comment add failed: %v", projectID, err)
	}
	s.cache.Invalidate()

	return CommentView{ID: comment.ID, Text: comment.Text, User: comment.User, Timestamp: comment.Timestamp}, nil
}

func (s *Service) DeleteComment(ctx context.Context, sess Session, projectID, commentID string) error {
	if err := s.requireWrite(sess); err != nil {
		return err
	}
	found, err := s.store.DeleteComment(ctx, projectID, commentID)
	if err != nil {
		return err
	}
	if !found {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Comment not found", nil)
	}
	if err := s.store.TouchProject(ctx, projectID); err != nil {
		log.Printf("touch project %s after comment delete failed: %v", projectID, err)
	}
	s.cache.Invalidate()
	return nil
}

func (s *Service) AddLookupEntry(ctx context.Context, sess Session, kind, name string) (store.LookupEntry, error) {
	if err := s.requireWrite(sess); err != nil {
		return store.LookupEntry{}, err
	}
	if !store.IsLookupKind(kind) {
		return store.LookupEntry{}, domainError(http.StatusNotFound, "NOT_FOUND", "Unknown settings list", nil)
	}
	if strings.TrimSpace(name) == "" {
		return store.LookupEntry{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	entry := store.LookupEntry{ID: util.NewID("lk"), Kind: kind, Name: strings.TrimSpace(name)}
	if err := s.store.InsertLookup(ctx, entry); err != nil {
		return store.LookupEntry{}, err
	}
	s.cache.Invalidate()
	return entry, nil
}

func (s *Service) DeleteLookupEntry(ctx context.Context, sess Session, kind, entryID string) error {
	if err := s.requireWrite(sess); err != nil {
		return err
	}
	if !store.IsLookupKind(kind) {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Unknown settings list", nil)
	}
	found, err := s.store.DeleteLookup(ctx, kind, entryID)
	if err != nil {
		return err
	}
	if !found {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Entry not found", nil)
	}
	s.cache.Invalidate()
	return nil
}

func (s *Service) PingStore(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) PingSessions(ctx context.Context) error {
	return s.sessions.Ping(ctx)
}

func filterProjects(items []store.Project, filter ProjectFilter) []store.Project {
	filtered := make([]store.Project, 0, len(items))
	for _, item := range items {
		if !matchesDimension(filter.BusinessArea, item.BusinessArea) {
			continue
		}
		if !matchesDimension(filter.Region, item.Region) {
			continue
		}
		if !matchesDimension(filter.POC, item.MainPOC) {
			continue
		}
		if !matchesDimension(filter.NPI, item.IsNPI) {
			continue
		}
		filtered = append(filtered, item)
	}
	return filtered
}

func matchesDimension(want, got string) bool {
	return want == "" || want == "All" || want == got
}

func toView(item store.Project) ProjectView {
	firstContact := ""
	if item.FirstContact != nil {
		firstContact = item.FirstContact.Format("2006-01-02")
	}
	return ProjectView{
		ID:           item.ID,
		SupplierName: item.SupplierName,
		PORef:        item.PORef,
		FirstContact: firstContact,
		MainPOC:      item.MainPOC,
		Region:       item.Region,
		IsNPI:        item.IsNPI,
		BusinessArea: item.BusinessArea,
		Status:       item.Status,
		Quantities:   item.Quantities,
		LastActivity: activityOf(item),
	}
}

func activityOf(item store.Project) time.Time {
	if item.LastActivity == nil {
		return time.Time{}
	}
	return *item.LastActivity
}

func normalizeNPI(value, fallback string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		trimmed = fallback
	}
	if trimmed != "Yes" && trimmed != "No" {
		return "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "isNPI must be Yes or No", nil)
	}
	return trimmed, nil
}

func normalizeBusinessArea(value, fallback string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		trimmed = fallback
	}
	if trimmed != "External" && trimmed != "Internal" {
		return "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "businessArea must be External or Internal", nil)
	}
	return trimmed, nil
}

func parseDate(value string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", trimmed)
	if err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "dates must be YYYY-MM-DD", nil)
	}
	return &parsed, nil
}
