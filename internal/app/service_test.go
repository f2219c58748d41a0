package app

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"ideahub/api/internal/auth"
	"ideahub/api/internal/authpw"
	"ideahub/api/internal/config"
	"ideahub/api/internal/email"
	"ideahub/api/internal/export"
	"ideahub/api/internal/gitrepo"
	"ideahub/api/internal/search"
	"ideahub/api/internal/storage"
	"ideahub/api/internal/store"
)

type fakeStore struct {
	pingFn                    func(context.Context) error
	createUserFn              func(context.Context, store.User) error
	getUserByIDFn             func(context.Context, string) (store.User, error)
	getUserByEmailFn          func(context.Context, string) (store.User, error)
	getUserByUsernameFn       func(context.Context, string) (store.User, error)
	updateUserProfileFn       func(context.Context, string, string, string, string) error
	updateUserRoleFn          func(context.Context, string, string) error
	deleteUserFn              func(context.Context, string) error
	listUsersFn               func(context.Context, string, int, int) ([]store.User, int, error)
	countUsersFn              func(context.Context) (int, error)
	createPasswordResetFn     func(context.Context, string, string, time.Time) error
	getPasswordResetFn        func(context.Context, string) (string, error)
	revokeAccessTokenFn       func(context.Context, string, time.Time) error
	isAccessTokenRevokedFn    func(context.Context, string) (bool, error)
	claimPendingAssignmentsFn func(context.Context, string, string) ([]string, error)

	insertIdeaFn            func(context.Context, store.Idea) error
	getIdeaFn               func(context.Context, string) (store.Idea, error)
	listIdeasFn             func(context.Context, store.IdeaFilter) ([]store.Idea, int, error)
	updateIdeaFn            func(context.Context, string, store.IdeaUpdate) error
	updateIdeaStatusFn      func(context.Context, string, string) error
	updateIdeaAssignmentsFn func(context.Context, string, store.Assignment, store.Assignment, store.Assignment) error
	deleteIdeaFn            func(context.Context, string) error
	touchIdeaFn             func(context.Context, string) error
	insertStatusChangeFn    func(context.Context, store.StatusChange) error
	listStatusChangesFn     func(context.Context, string) ([]store.StatusChange, error)
	insertAttachmentFn      func(context.Context, store.Attachment) error
	getAttachmentFn         func(context.Context, string) (store.Attachment, error)
	listAttachmentsFn       func(context.Context, string) ([]store.Attachment, error)

	addVoteFn           func(context.Context, string, string) (int, bool, error)
	removeVoteFn        func(context.Context, string, string) (int, bool, error)
	hasVotedFn          func(context.Context, string, string) (bool, error)
	listUserVotesFn     func(context.Context, string) ([]string, error)
	insertCommentFn     func(context.Context, store.Comment) error
	getCommentFn        func(context.Context, string) (store.Comment, error)
	listCommentsFn      func(context.Context, string) ([]store.Comment, error)
	deleteCommentFn     func(context.Context, string) error
	addFollowFn         func(context.Context, store.Follow) error
	removeFollowFn      func(context.Context, string, string) error
	listFollowsFn       func(context.Context, string) ([]store.Follow, error)
	isFollowingFn       func(context.Context, string, string) (bool, error)
	listFollowerIDsFn   func(context.Context, string) ([]string, error)
	addParticipantFn    func(context.Context, string, string) (bool, error)
	removeParticipantFn func(context.Context, string, string) error
	isParticipantFn     func(context.Context, string, string) (bool, error)
	listParticipantsFn  func(context.Context, string) ([]store.User, error)

	insertNotificationFn       func(context.Context, store.Notification) error
	listNotificationsFn        func(context.Context, string, bool, int, int) ([]store.Notification, error)
	unreadNotificationCountFn  func(context.Context, string) (int, error)
	markNotificationReadFn     func(context.Context, string, string) error
	markAllNotificationsReadFn func(context.Context, string) (int, error)

	leaderboardFn        func(context.Context, store.LeaderboardFilter) ([]store.LeaderboardRow, error)
	metricsSummaryFn     func(context.Context) (store.Metrics, error)
	statusBreakdownFn    func(context.Context) ([]store.CountByLabel, error)
	categoryBreakdownFn  func(context.Context) ([]store.CountByLabel, error)
	departmentActivityFn func(context.Context) ([]store.CountByLabel, error)
	submissionTrendFn    func(context.Context, int) ([]store.TimeCount, error)
	listDepartmentsFn    func(context.Context) ([]string, error)
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}
func (f *fakeStore) CreateUser(ctx context.Context, user store.User) error {
	if f.createUserFn != nil {
		return f.createUserFn(ctx, user)
	}
	return nil
}
func (f *fakeStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, id)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) GetUserByEmail(ctx context.Context, address string) (store.User, error) {
	if f.getUserByEmailFn != nil {
		return f.getUserByEmailFn(ctx, address)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) GetUserByUsername(ctx context.Context, username string) (store.User, error) {
	if f.getUserByUsernameFn != nil {
		return f.getUserByUsernameFn(ctx, username)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) UpdateUserProfile(ctx context.Context, userID, displayName, department, avatarURL string) error {
	if f.updateUserProfileFn != nil {
		return f.updateUserProfileFn(ctx, userID, displayName, department, avatarURL)
	}
	return nil
}
func (f *fakeStore) UpdateUserRole(ctx context.Context, userID, role string) error {
	if f.updateUserRoleFn != nil {
		return f.updateUserRoleFn(ctx, userID, role)
	}
	return nil
}
func (f *fakeStore) DeleteUser(ctx context.Context, userID string) error {
	if f.deleteUserFn != nil {
		return f.deleteUserFn(ctx, userID)
	}
	return nil
}
func (f *fakeStore) ListUsers(ctx context.Context, search string, limit, offset int) ([]store.User, int, error) {
	if f.listUsersFn != nil {
		return f.listUsersFn(ctx, search, limit, offset)
	}
	return nil, 0, nil
}
func (f *fakeStore) CountUsers(ctx context.Context) (int, error) {
	if f.countUsersFn != nil {
		return f.countUsersFn(ctx)
	}
	return 0, nil
}
func (f *fakeStore) UpdateUserVerificationToken(context.Context, string, string, time.Time) error {
	return nil
}
func (f *fakeStore) VerifyUserEmail(context.Context, string) error            { return nil }
func (f *fakeStore) UpdateUserPassword(context.Context, string, string) error { return nil }
func (f *fakeStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	if f.createPasswordResetFn != nil {
		return f.createPasswordResetFn(ctx, userID, token, expiresAt)
	}
	return nil
}
func (f *fakeStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	if f.getPasswordResetFn != nil {
		return f.getPasswordResetFn(ctx, token)
	}
	return "", sql.ErrNoRows
}
func (f *fakeStore) MarkPasswordResetUsed(context.Context, string) error { return nil }
func (f *fakeStore) RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	if f.revokeAccessTokenFn != nil {
		return f.revokeAccessTokenFn(ctx, jti, expiresAt)
	}
	return nil
}
func (f *fakeStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if f.isAccessTokenRevokedFn != nil {
		return f.isAccessTokenRevokedFn(ctx, jti)
	}
	return false, nil
}
func (f *fakeStore) ClaimPendingAssignments(ctx context.Context, address, userID string) ([]string, error) {
	if f.claimPendingAssignmentsFn != nil {
		return f.claimPendingAssignmentsFn(ctx, address, userID)
	}
	return nil, nil
}

func (f *fakeStore) InsertIdea(ctx context.Context, idea store.Idea) error {
	if f.insertIdeaFn != nil {
		return f.insertIdeaFn(ctx, idea)
	}
	return nil
}
func (f *fakeStore) GetIdea(ctx context.Context, ideaID string) (store.Idea, error) {
	if f.getIdeaFn != nil {
		return f.getIdeaFn(ctx, ideaID)
	}
	return store.Idea{}, sql.ErrNoRows
}
func (f *fakeStore) ListIdeas(ctx context.Context, filter store.IdeaFilter) ([]store.Idea, int, error) {
	if f.listIdeasFn != nil {
		return f.listIdeasFn(ctx, filter)
	}
	return nil, 0, nil
}
func (f *fakeStore) UpdateIdea(ctx context.Context, ideaID string, update store.IdeaUpdate) error {
	if f.updateIdeaFn != nil {
		return f.updateIdeaFn(ctx, ideaID, update)
	}
	return nil
}
func (f *fakeStore) UpdateIdeaStatus(ctx context.Context, ideaID, status string) error {
	if f.updateIdeaStatusFn != nil {
		return f.updateIdeaStatusFn(ctx, ideaID, status)
	}
	return nil
}
func (f *fakeStore) UpdateIdeaAssignments(ctx context.Context, ideaID string, reviewer, transformer, implementer store.Assignment) error {
	if f.updateIdeaAssignmentsFn != nil {
		return f.updateIdeaAssignmentsFn(ctx, ideaID, reviewer, transformer, implementer)
	}
	return nil
}
func (f *fakeStore) DeleteIdea(ctx context.Context, ideaID string) error {
	if f.deleteIdeaFn != nil {
		return f.deleteIdeaFn(ctx, ideaID)
	}
	return nil
}
func (f *fakeStore) TouchIdea(ctx context.Context, ideaID string) error {
	if f.touchIdeaFn != nil {
		return f.touchIdeaFn(ctx, ideaID)
	}
	return nil
}
func (f *fakeStore) InsertStatusChange(ctx context.Context, change store.StatusChange) error {
	if f.insertStatusChangeFn != nil {
		return f.insertStatusChangeFn(ctx, change)
	}
	return nil
}
func (f *fakeStore) ListStatusChanges(ctx context.Context, ideaID string) ([]store.StatusChange, error) {
	if f.listStatusChangesFn != nil {
		return f.listStatusChangesFn(ctx, ideaID)
	}
	return nil, nil
}
func (f *fakeStore) InsertAttachment(ctx context.Context, att store.Attachment) error {
	if f.insertAttachmentFn != nil {
		return f.insertAttachmentFn(ctx, att)
	}
	return nil
}
func (f *fakeStore) GetAttachment(ctx context.Context, attachmentID string) (store.Attachment, error) {
	if f.getAttachmentFn != nil {
		return f.getAttachmentFn(ctx, attachmentID)
	}
	return store.Attachment{}, sql.ErrNoRows
}
func (f *fakeStore) ListAttachments(ctx context.Context, ideaID string) ([]store.Attachment, error) {
	if f.listAttachmentsFn != nil {
		return f.listAttachmentsFn(ctx, ideaID)
	}
	return nil, nil
}

func (f *fakeStore) AddVote(ctx context.Context, ideaID, userID string) (int, bool, error) {
	if f.addVoteFn != nil {
		return f.addVoteFn(ctx, ideaID, userID)
	}
	return 1, true, nil
}
func (f *fakeStore) RemoveVote(ctx context.Context, ideaID, userID string) (int, bool, error) {
	if f.removeVoteFn != nil {
		return f.removeVoteFn(ctx, ideaID, userID)
	}
	return 0, true, nil
}
func (f *fakeStore) HasVoted(ctx context.Context, ideaID, userID string) (bool, error) {
	if f.hasVotedFn != nil {
		return f.hasVotedFn(ctx, ideaID, userID)
	}
	return false, nil
}
func (f *fakeStore) ListUserVotes(ctx context.Context, userID string) ([]string, error) {
	if f.listUserVotesFn != nil {
		return f.listUserVotesFn(ctx, userID)
	}
	return nil, nil
}
func (f *fakeStore) InsertComment(ctx context.Context, comment store.Comment) error {
	if f.insertCommentFn != nil {
		return f.insertCommentFn(ctx, comment)
	}
	return nil
}
func (f *fakeStore) GetComment(ctx context.Context, commentID string) (store.Comment, error) {
	if f.getCommentFn != nil {
		return f.getCommentFn(ctx, commentID)
	}
	return store.Comment{}, sql.ErrNoRows
}
func (f *fakeStore) ListComments(ctx context.Context, ideaID string) ([]store.Comment, error) {
	if f.listCommentsFn != nil {
		return f.listCommentsFn(ctx, ideaID)
	}
	return nil, nil
}
func (f *fakeStore) DeleteComment(ctx context.Context, commentID string) error {
	if f.deleteCommentFn != nil {
		return f.deleteCommentFn(ctx, commentID)
	}
	return nil
}
func (f *fakeStore) AddFollow(ctx context.Context, follow store.Follow) error {
	if f.addFollowFn != nil {
		return f.addFollowFn(ctx, follow)
	}
	return nil
}
func (f *fakeStore) RemoveFollow(ctx context.Context, userID, itemID string) error {
	if f.removeFollowFn != nil {
		return f.removeFollowFn(ctx, userID, itemID)
	}
	return nil
}
func (f *fakeStore) ListFollows(ctx context.Context, userID string) ([]store.Follow, error) {
	if f.listFollowsFn != nil {
		return f.listFollowsFn(ctx, userID)
	}
	return nil, nil
}
func (f *fakeStore) IsFollowing(ctx context.Context, userID, itemID string) (bool, error) {
	if f.isFollowingFn != nil {
		return f.isFollowingFn(ctx, userID, itemID)
	}
	return false, nil
}
func (f *fakeStore) ListFollowerIDs(ctx context.Context, ideaID string) ([]string, error) {
	if f.listFollowerIDsFn != nil {
		return f.listFollowerIDsFn(ctx, ideaID)
	}
	return nil, nil
}
func (f *fakeStore) AddParticipant(ctx context.Context, ideaID, userID string) (bool, error) {
	if f.addParticipantFn != nil {
		return f.addParticipantFn(ctx, ideaID, userID)
	}
	return true, nil
}
func (f *fakeStore) RemoveParticipant(ctx context.Context, ideaID, userID string) error {
	if f.removeParticipantFn != nil {
		return f.removeParticipantFn(ctx, ideaID, userID)
	}
	return nil
}
func (f *fakeStore) IsParticipant(ctx context.Context, ideaID, userID string) (bool, error) {
	if f.isParticipantFn != nil {
		return f.isParticipantFn(ctx, ideaID, userID)
	}
	return false, nil
}
func (f *fakeStore) ListParticipants(ctx context.Context, ideaID string) ([]store.User, error) {
	if f.listParticipantsFn != nil {
		return f.listParticipantsFn(ctx, ideaID)
	}
	return nil, nil
}

func (f *fakeStore) InsertNotification(ctx context.Context, n store.Notification) error {
	if f.insertNotificationFn != nil {
		return f.insertNotificationFn(ctx, n)
	}
	return nil
}
func (f *fakeStore) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]store.Notification, error) {
	if f.listNotificationsFn != nil {
		return f.listNotificationsFn(ctx, userID, unreadOnly, limit, offset)
	}
	return nil, nil
}
func (f *fakeStore) UnreadNotificationCount(ctx context.Context, userID string) (int, error) {
	if f.unreadNotificationCountFn != nil {
		return f.unreadNotificationCountFn(ctx, userID)
	}
	return 0, nil
}
func (f *fakeStore) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	if f.markNotificationReadFn != nil {
		return f.markNotificationReadFn(ctx, userID, notificationID)
	}
	return nil
}
func (f *fakeStore) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	if f.markAllNotificationsReadFn != nil {
		return f.markAllNotificationsReadFn(ctx, userID)
	}
	return 0, nil
}

func (f *fakeStore) Leaderboard(ctx context.Context, filter store.LeaderboardFilter) ([]store.LeaderboardRow, error) {
	if f.leaderboardFn != nil {
		return f.leaderboardFn(ctx, filter)
	}
	return nil, nil
}
func (f *fakeStore) MetricsSummary(ctx context.Context) (store.Metrics, error) {
	if f.metricsSummaryFn != nil {
		return f.metricsSummaryFn(ctx)
	}
	return store.Metrics{}, nil
}
func (f *fakeStore) StatusBreakdown(ctx context.Context) ([]store.CountByLabel, error) {
	if f.statusBreakdownFn != nil {
		return f.statusBreakdownFn(ctx)
	}
	return nil, nil
}
func (f *fakeStore) CategoryBreakdown(ctx context.Context) ([]store.CountByLabel, error) {
	if f.categoryBreakdownFn != nil {
		return f.categoryBreakdownFn(ctx)
	}
	return nil, nil
}
func (f *fakeStore) DepartmentActivity(ctx context.Context) ([]store.CountByLabel, error) {
	if f.departmentActivityFn != nil {
		return f.departmentActivityFn(ctx)
	}
	return nil, nil
}
func (f *fakeStore) SubmissionTrend(ctx context.Context, days int) ([]store.TimeCount, error) {
	if f.submissionTrendFn != nil {
		return f.submissionTrendFn(ctx, days)
	}
	return nil, nil
}
func (f *fakeStore) ListDepartments(ctx context.Context) ([]string, error) {
	if f.listDepartmentsFn != nil {
		return f.listDepartmentsFn(ctx)
	}
	return nil, nil
}

type fakeGit struct {
	ensureIdeaRepoFn    func(string, gitrepo.Snapshot, string) error
	commitSnapshotFn    func(string, gitrepo.Snapshot, string, string) (store.CommitInfo, error)
	getHeadSnapshotFn   func(string) (gitrepo.Snapshot, store.CommitInfo, error)
	getSnapshotByHashFn func(string, string) (gitrepo.Snapshot, error)
	getCommitByHashFn   func(string, string) (store.CommitInfo, error)
	historyFn           func(string, int) ([]store.CommitInfo, error)
	removeFn            func(string) error
}

func (f *fakeGit) EnsureIdeaRepo(ideaID string, initial gitrepo.Snapshot, author string) error {
	if f.ensureIdeaRepoFn != nil {
		return f.ensureIdeaRepoFn(ideaID, initial, author)
	}
	return nil
}
func (f *fakeGit) CommitSnapshot(ideaID string, snapshot gitrepo.Snapshot, author, message string) (store.CommitInfo, error) {
	if f.commitSnapshotFn != nil {
		return f.commitSnapshotFn(ideaID, snapshot, author, message)
	}
	return store.CommitInfo{Hash: "abc1234", Author: author, Message: message, CreatedAt: time.Now()}, nil
}
func (f *fakeGit) GetHeadSnapshot(ideaID string) (gitrepo.Snapshot, store.CommitInfo, error) {
	if f.getHeadSnapshotFn != nil {
		return f.getHeadSnapshotFn(ideaID)
	}
	return gitrepo.Snapshot{Title: "Idea"}, store.CommitInfo{Hash: "head123", Author: "Avery", CreatedAt: time.Now(), Message: "head"}, nil
}
func (f *fakeGit) GetSnapshotByHash(ideaID, hash string) (gitrepo.Snapshot, error) {
	if f.getSnapshotByHashFn != nil {
		return f.getSnapshotByHashFn(ideaID, hash)
	}
	return gitrepo.Snapshot{Title: "Idea"}, nil
}
func (f *fakeGit) GetCommitByHash(ideaID, hash string) (store.CommitInfo, error) {
	if f.getCommitByHashFn != nil {
		return f.getCommitByHashFn(ideaID, hash)
	}
	return store.CommitInfo{Hash: hash, Author: "Avery", CreatedAt: time.Now(), Message: "commit"}, nil
}
func (f *fakeGit) History(ideaID string, limit int) ([]store.CommitInfo, error) {
	if f.historyFn != nil {
		return f.historyFn(ideaID, limit)
	}
	return []store.CommitInfo{{Hash: "abc1234", Message: "Commit", Author: "Avery", CreatedAt: time.Now()}}, nil
}
func (f *fakeGit) Remove(ideaID string) error {
	if f.removeFn != nil {
		return f.removeFn(ideaID)
	}
	return nil
}

type fakeSessions struct {
	mu     sync.Mutex
	byHash map[string]string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{byHash: make(map[string]string)}
}

func (f *fakeSessions) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byHash[tokenHash] = userID
	return nil
}
func (f *fakeSessions) LookupRefreshSession(_ context.Context, tokenHash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.byHash[tokenHash]
	if !ok {
		return "", sql.ErrNoRows
	}
	return userID, nil
}
func (f *fakeSessions) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byHash, tokenHash)
	return nil
}

type fakeSearch struct {
	mu              sync.Mutex
	indexedIdeas    []search.IdeaRecord
	indexedComments []search.CommentRecord
	deletedIdeas    []string
	deletedComments []string
	searchFn        func(search.Query) search.Response
}

func (f *fakeSearch) Search(query search.Query) search.Response {
	if f.searchFn != nil {
		return f.searchFn(query)
	}
	return search.Response{Results: []search.Result{}, Query: query.Text}
}
func (f *fakeSearch) IndexIdea(record search.IdeaRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexedIdeas = append(f.indexedIdeas, record)
}
func (f *fakeSearch) IndexComment(record search.CommentRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexedComments = append(f.indexedComments, record)
}
func (f *fakeSearch) DeleteIdea(ideaID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedIdeas = append(f.deletedIdeas, ideaID)
}
func (f *fakeSearch) DeleteComment(commentID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedComments = append(f.deletedComments, commentID)
}

type memFiles struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemFiles() *memFiles {
	return &memFiles{objects: make(map[string][]byte)}
}

func (m *memFiles) Put(_ context.Context, key string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}
func (m *memFiles) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
func (m *memFiles) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func newTestService(fs *fakeStore, fg *fakeGit) *Service {
	svc := &Service{
		cfg: config.Config{
			BaseURL:       "http://localhost:5173",
			JWTSecret:     "test-secret-0123456789abcdef",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    720 * time.Hour,
			MaxUploadMB:   16,
			CORSOrigin:    "*",
			AdminEmail:    "admin@example.com",
			AdminPassword: "admin-password-1",
		},
		store:    fs,
		sessions: newFakeSessions(),
		accounts: authpw.NewService(fs, true),
		git:      fg,
		search:   &fakeSearch{},
		files:    newMemFiles(),
		mailer:   email.NewService(email.Config{}),
		logger:   zap.NewNop(),
	}
	svc.exports = export.NewService(&exportData{service: svc})
	return svc
}

// seedUserStore wires the account fns over an in-memory map so signup,
// login and refresh flows round-trip. Mutating a returned user is visible
// to later lookups.
func seedUserStore(fs *fakeStore) map[string]*store.User {
	users := map[string]*store.User{}
	fs.createUserFn = func(_ context.Context, user store.User) error {
		users[user.ID] = &user
		return nil
	}
	fs.getUserByIDFn = func(_ context.Context, id string) (store.User, error) {
		if user, ok := users[id]; ok {
			return *user, nil
		}
		return store.User{}, sql.ErrNoRows
	}
	fs.getUserByEmailFn = func(_ context.Context, address string) (store.User, error) {
		for _, user := range users {
			if user.Email == address {
				return *user, nil
			}
		}
		return store.User{}, sql.ErrNoRows
	}
	fs.getUserByUsernameFn = func(_ context.Context, username string) (store.User, error) {
		for _, user := range users {
			if user.Username == username {
				return *user, nil
			}
		}
		return store.User{}, sql.ErrNoRows
	}
	return users
}

func registerTestUser(t *testing.T, svc *Service) Session {
	t.Helper()
	result, err := svc.Register(context.Background(), RegisterInput{
		Username:    "avery",
		Email:       "avery@example.com",
		Password:    "hunter2hunter2",
		DisplayName: "Avery Quinn",
		Department:  "Platform",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if result.Session == nil {
		t.Fatalf("expected a session from auto-verified registration")
	}
	return *result.Session
}

func TestBootstrapSeedsAdminOnce(t *testing.T) {
	var created []store.User
	fs := &fakeStore{
		countUsersFn: func(context.Context) (int, error) { return 0, nil },
		createUserFn: func(_ context.Context, user store.User) error {
			created = append(created, user)
			return nil
		},
	}
	svc := newTestService(fs, &fakeGit{})

	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("expected one seeded account, got %d", len(created))
	}
	admin := created[0]
	if admin.Role != "admin" {
		t.Fatalf("expected seeded role admin, got %q", admin.Role)
	}
	if admin.Email != "admin@example.com" {
		t.Fatalf("expected seeded email admin@example.com, got %q", admin.Email)
	}
	if !admin.IsEmailVerified {
		t.Fatalf("expected seeded admin to be email-verified")
	}
	if admin.PasswordHash == "" || admin.PasswordHash == svc.cfg.AdminPassword {
		t.Fatalf("expected a hashed admin password, got %q", admin.PasswordHash)
	}

	fs.countUsersFn = func(context.Context) (int, error) { return 1, nil }
	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap() second run error = %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("expected no second seed, got %d accounts", len(created))
	}
}

func TestRegisterIssuesSessionWhenAutoVerified(t *testing.T) {
	fs := &fakeStore{}
	users := seedUserStore(fs)
	svc := newTestService(fs, &fakeGit{})

	result, err := svc.Register(context.Background(), RegisterInput{
		Username:    "avery",
		Email:       "Avery@Example.com",
		Password:    "hunter2hunter2",
		DisplayName: "Avery Quinn",
		Department:  "Platform",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if result.RequiresVerification {
		t.Fatalf("expected auto-verified registration without a mailer")
	}
	if result.Session == nil || result.Session.Token == "" {
		t.Fatalf("expected a session with an access token")
	}
	if result.Session.Role != "user" {
		t.Fatalf("expected default role user, got %q", result.Session.Role)
	}
	if len(users) != 1 {
		t.Fatalf("expected one stored user, got %d", len(users))
	}
	for _, user := range users {
		if user.Email != "avery@example.com" {
			t.Fatalf("expected lowercased email, got %q", user.Email)
		}
	}
}

func TestRegisterRequiresVerificationWithMailer(t *testing.T) {
	fs := &fakeStore{}
	seedUserStore(fs)
	svc := newTestService(fs, &fakeGit{})
	svc.accounts = authpw.NewService(fs, false)

	result, err := svc.Register(context.Background(), RegisterInput{
		Username:    "avery",
		Email:       "avery@example.com",
		Password:    "hunter2hunter2",
		DisplayName: "Avery Quinn",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if !result.RequiresVerification {
		t.Fatalf("expected verification-pending registration")
	}
	if result.Session != nil {
		t.Fatalf("expected no session before verification")
	}

	if _, err := svc.Login(context.Background(), LoginInput{Email: "avery@example.com", Password: "hunter2hunter2"}); err == nil {
		t.Fatalf("expected login to fail before verification")
	} else {
		var domainErr *DomainError
		if !errors.As(err, &domainErr) || domainErr.Status != http.StatusForbidden {
			t.Fatalf("expected 403 for unverified account, got %v", err)
		}
	}
}

func TestRegisterConflictOnTakenEmail(t *testing.T) {
	fs := &fakeStore{
		getUserByEmailFn: func(context.Context, string) (store.User, error) {
			return store.User{ID: "usr_1"}, nil
		},
	}
	svc := newTestService(fs, &fakeGit{})

	_, err := svc.Register(context.Background(), RegisterInput{
		Username:    "avery",
		Email:       "avery@example.com",
		Password:    "hunter2hunter2",
		DisplayName: "Avery Quinn",
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != http.StatusConflict || domainErr.Code != "CONFLICT" {
		t.Fatalf("expected 409 CONFLICT, got %d %s", domainErr.Status, domainErr.Code)
	}
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeGit{})

	_, err := svc.Register(context.Background(), RegisterInput{
		Username:    "av",
		Email:       "not-an-email",
		Password:    "short",
		DisplayName: "",
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != http.StatusBadRequest || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected 400 VALIDATION_ERROR, got %d %s", domainErr.Status, domainErr.Code)
	}
	details, ok := domainErr.Details.(map[string]string)
	if !ok {
		t.Fatalf("expected per-field details map, got %T", domainErr.Details)
	}
	if details["email"] == "" {
		t.Fatalf("expected a rule for the email field, got %v", details)
	}
}

func TestRegisterClaimsPendingAssignments(t *testing.T) {
	var claimedEmail string
	var notifications []store.Notification
	fs := &fakeStore{
		claimPendingAssignmentsFn: func(_ context.Context, address, userID string) ([]string, error) {
			claimedEmail = address
			return []string{"idea_1"}, nil
		},
		getIdeaFn: func(_ context.Context, ideaID string) (store.Idea, error) {
			return store.Idea{ID: ideaID, Title: "Faster builds", SubmitterID: "usr_9"}, nil
		},
		insertNotificationFn: func(_ context.Context, n store.Notification) error {
			notifications = append(notifications, n)
			return nil
		},
	}
	seedUserStore(fs)
	svc := newTestService(fs, &fakeGit{})

	session := registerTestUser(t, svc)

	if claimedEmail != "avery@example.com" {
		t.Fatalf("expected claim with lowercased email, got %q", claimedEmail)
	}
	if len(notifications) != 1 {
		t.Fatalf("expected one assignment notification, got %d", len(notifications))
	}
	n := notifications[0]
	if n.UserID != session.UserID || n.Type != "assignment" {
		t.Fatalf("expected assignment notification for the new user, got %+v", n)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	fs := &fakeStore{}
	seedUserStore(fs)
	svc := newTestService(fs, &fakeGit{})
	registerTestUser(t, svc)

	_, err := svc.Login(context.Background(), LoginInput{
		Email:    "avery@example.com",
		Password: "wrong-password",
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad credentials, got %v", err)
	}
}

func TestRefreshRotatesTokenAndReloadsRole(t *testing.T) {
	fs := &fakeStore{}
	users := seedUserStore(fs)
	svc := newTestService(fs, &fakeGit{})
	session := registerTestUser(t, svc)

	refreshed, err := svc.Refresh(context.Background(), session.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if refreshed.RefreshToken == session.RefreshToken {
		t.Fatalf("expected refresh token rotation")
	}
	if _, err := svc.Refresh(context.Background(), session.RefreshToken); err == nil {
		t.Fatalf("expected the consumed refresh token to be rejected")
	}

	for _, user := range users {
		user.Role = "reviewer"
	}
	again, err := svc.Refresh(context.Background(), refreshed.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() after role change error = %v", err)
	}
	if again.Role != "reviewer" {
		t.Fatalf("expected rotated session to carry the new role, got %q", again.Role)
	}
}

func TestSessionFromTokenRejectsRevokedJTI(t *testing.T) {
	fs := &fakeStore{}
	seedUserStore(fs)
	svc := newTestService(fs, &fakeGit{})
	session := registerTestUser(t, svc)

	fs.isAccessTokenRevokedFn = func(context.Context, string) (bool, error) { return true, nil }

	_, err := svc.SessionFromToken(context.Background(), session.Token)
	if !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for a revoked jti, got %v", err)
	}
}

func TestLogoutRevokesAccessAndRefresh(t *testing.T) {
	var revokedJTI string
	fs := &fakeStore{
		revokeAccessTokenFn: func(_ context.Context, jti string, _ time.Time) error {
			revokedJTI = jti
			return nil
		},
	}
	seedUserStore(fs)
	svc := newTestService(fs, &fakeGit{})
	session := registerTestUser(t, svc)

	if err := svc.Logout(context.Background(), session, session.RefreshToken); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if revokedJTI != session.JTI {
		t.Fatalf("expected jti %q revoked, got %q", session.JTI, revokedJTI)
	}
	if _, err := svc.Refresh(context.Background(), session.RefreshToken); err == nil {
		t.Fatalf("expected the refresh token to be revoked by logout")
	}
}

func TestRequestPasswordResetDevToken(t *testing.T) {
	fs := &fakeStore{}
	seedUserStore(fs)
	svc := newTestService(fs, &fakeGit{})
	registerTestUser(t, svc)

	token, err := svc.RequestPasswordReset(context.Background(), "avery@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset() error = %v", err)
	}
	if token == "" {
		t.Fatalf("expected a dev reset token without a configured mailer")
	}

	// Unknown addresses succeed silently.
	token, err = svc.RequestPasswordReset(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset() unknown address error = %v", err)
	}
	if token != "" {
		t.Fatalf("expected no token for an unknown address")
	}
}
