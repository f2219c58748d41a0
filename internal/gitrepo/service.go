// Package gitrepo keeps a git repository per idea and commits a snapshot on
// every content change, giving each idea an auditable revision history.
package gitrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"ideahub/api/internal/store"
)

// Snapshot is the content written to an idea's repository as idea.json.
type Snapshot struct {
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Category         string   `json:"category"`
	Status           string   `json:"status"`
	Priority         string   `json:"priority"`
	Impact           string   `json:"impact"`
	Inspiration      string   `json:"inspiration"`
	SimilarSolutions string   `json:"similarSolutions"`
	Tags             []string `json:"tags"`
}

// SnapshotFromIdea projects the tracked fields out of a stored idea.
func SnapshotFromIdea(idea store.Idea) Snapshot {
	return Snapshot{
		Title:            idea.Title,
		Description:      idea.Description,
		Category:         idea.Category,
		Status:           idea.Status,
		Priority:         idea.Priority,
		Impact:           idea.Impact,
		Inspiration:      idea.Inspiration,
		SimilarSolutions: idea.SimilarSolutions,
		Tags:             idea.Tags,
	}
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// EnsureIdeaRepo initializes the idea's repository with a baseline commit on
// main. Calling it again for an existing repo is a no-op.
func (s *Service) EnsureIdeaRepo(ideaID string, initial Snapshot, author string) error {
	lock := s.ideaLock(ideaID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(ideaID)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}

	repo, err := git.PlainInit(path, false)
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	payload, err := json.MarshalIndent(initial, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal initial snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, "idea.json"), append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write initial snapshot: %w", err)
	}
	if _, err := worktree.Add("idea.json"); err != nil {
		return fmt.Errorf("git add initial snapshot: %w", err)
	}
	hash, err := worktree.Commit("Submit idea", &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.ideahub.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("commit initial snapshot: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	return nil
}

// CommitSnapshot records a new revision on main and returns its commit info.
func (s *Service) CommitSnapshot(ideaID string, snapshot Snapshot, author, message string) (store.CommitInfo, error) {
	lock := s.ideaLock(ideaID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(ideaID))
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}

	hash, err := s.commit(repo, snapshot, author, message)
	if err != nil {
		return store.CommitInfo{}, err
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}

	return toCommitInfo(commitObj), nil
}

// GetHeadSnapshot returns the current snapshot and the commit that wrote it.
func (s *Service) GetHeadSnapshot(ideaID string) (Snapshot, store.CommitInfo, error) {
	lock := s.ideaLock(ideaID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(ideaID))
	if err != nil {
		return Snapshot{}, store.CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return Snapshot{}, store.CommitInfo{}, fmt.Errorf("resolve main: %w", err)
	}

	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return Snapshot{}, store.CommitInfo{}, fmt.Errorf("load commit object: %w", err)
	}

	snapshot, err := readSnapshotFromCommit(commitObj)
	if err != nil {
		return Snapshot{}, store.CommitInfo{}, err
	}

	return snapshot, toCommitInfo(commitObj), nil
}

// GetSnapshotByHash returns the snapshot as of a specific revision. Short
// hashes are resolved.
func (s *Service) GetSnapshotByHash(ideaID, hash string) (Snapshot, error) {
	lock := s.ideaLock(ideaID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(ideaID))
	if err != nil {
		return Snapshot{}, fmt.Errorf("open repo: %w", err)
	}

	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return Snapshot{}, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return readSnapshotFromCommit(commitObj)
}

func (s *Service) GetCommitByHash(ideaID, hash string) (store.CommitInfo, error) {
	lock := s.ideaLock(ideaID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(ideaID))
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}

	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return store.CommitInfo{}, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("read commit %s: %w", hash, err)
	}

	return toCommitInfo(commitObj), nil
}

// History lists revisions newest first, up to limit (0 = all).
func (s *Service) History(ideaID string, limit int) ([]store.CommitInfo, error) {
	lock := s.ideaLock(ideaID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(ideaID))
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]store.CommitInfo, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// Remove deletes the idea's repository from disk.
func (s *Service) Remove(ideaID string) error {
	lock := s.ideaLock(ideaID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(s.repoPath(ideaID)); err != nil {
		return fmt.Errorf("remove repo: %w", err)
	}
	return nil
}

func (s *Service) repoPath(ideaID string) string {
	return filepath.Join(s.baseDir, ideaID)
}

func (s *Service) ideaLock(ideaID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[ideaID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[ideaID] = lock
	return lock
}

func (s *Service) commit(repo *git.Repository, snapshot Snapshot, author, message string) (plumbing.Hash, error) {
	if err := checkoutMain(repo); err != nil {
		return plumbing.ZeroHash, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("marshal snapshot: %w", err)
	}

	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, "idea.json"), append(payload, '\n'), 0o644); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write idea.json: %w", err)
	}

	if _, err := worktree.Add("idea.json"); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add snapshot: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.ideahub.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit snapshot: %w", err)
	}
	return hash, nil
}

func checkoutMain(repo *git.Repository) error {
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	branchRef := plumbing.NewBranchReferenceName("main")
	if _, err := repo.Reference(branchRef, true); err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Create: true}); err != nil {
				return fmt.Errorf("create main checkout: %w", err)
			}
			return nil
		}
		return fmt.Errorf("resolve main: %w", err)
	}

	if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Force: true}); err != nil {
		return fmt.Errorf("checkout main: %w", err)
	}
	return nil
}

func readSnapshotFromCommit(commitObj *object.Commit) (Snapshot, error) {
	file, err := commitObj.File("idea.json")
	if err != nil {
		return Snapshot{}, fmt.Errorf("load idea.json from commit: %w", err)
	}
	reader, err := file.Reader()
	if err != nil {
		return Snapshot{}, fmt.Errorf("open snapshot reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot bytes: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("decode commit snapshot: %w", err)
	}
	return snapshot, nil
}

// DiffFields lists the fields that changed between two snapshots.
func DiffFields(from, to Snapshot) []map[string]string {
	type pair struct {
		field  string
		before string
		after  string
	}
	pairs := []pair{
		{field: "title", before: from.Title, after: to.Title},
		{field: "description", before: from.Description, after: to.Description},
		{field: "category", before: from.Category, after: to.Category},
		{field: "status", before: from.Status, after: to.Status},
		{field: "priority", before: from.Priority, after: to.Priority},
		{field: "impact", before: from.Impact, after: to.Impact},
		{field: "inspiration", before: from.Inspiration, after: to.Inspiration},
		{field: "similarSolutions", before: from.SimilarSolutions, after: to.SimilarSolutions},
		{field: "tags", before: strings.Join(from.Tags, ", "), after: strings.Join(to.Tags, ", ")},
	}
	result := make([]map[string]string, 0)
	for _, item := range pairs {
		if item.before == item.after {
			continue
		}
		result = append(result, map[string]string{
			"field":  item.field,
			"before": item.before,
			"after":  item.after,
		})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i]["field"] < result[j]["field"]
	})
	return result
}

func HasChanges(from, to Snapshot) bool {
	return len(DiffFields(from, to)) > 0
}

func toCommitInfo(commitObj *object.Commit) store.CommitInfo {
	return store.CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
