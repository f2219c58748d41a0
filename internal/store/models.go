package store

import "time"

type User struct {
	ID                    string
	Username              string
	Email                 string
	DisplayName           string
	Department            string
	Role                  string
	AvatarURL             string
	PasswordHash          string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Assignment is one of the three per-idea triage slots. Either UserID or
// Email is set; Email marks a pending assignment claimed at registration.
type Assignment struct {
	UserID string
	Email  string
}

func (a Assignment) Empty() bool { return a.UserID == "" && a.Email == "" }

type Idea struct {
	ID               string
	Title            string
	Description      string
	Category         string
	Department       string
	Status           string
	Priority         string
	Votes            int
	Tags             []string
	Impact           string
	Inspiration      string
	SimilarSolutions string
	AdminNotes       string
	CostSaved        *float64
	RevenueGenerated *float64
	Reviewer         Assignment
	Transformer      Assignment
	Implementer      Assignment
	SubmitterID      string
	AssigneeID       *string
	CreatedAt        time.Time
	UpdatedAt        time.Time

	// Joined display fields, populated by list/get queries.
	SubmitterName       string
	SubmitterDepartment string
	SubmitterAvatarURL  string
	CommentCount        int
	ParticipantCount    int
}

type Comment struct {
	ID         string
	IdeaID     string
	AuthorID   string
	ParentID   *string
	Body       string
	CreatedAt  time.Time
	AuthorName string
	AuthorRole string
}

type Follow struct {
	UserID    string
	ItemID    string
	ItemType  string
	CreatedAt time.Time
}

type Notification struct {
	ID        string
	UserID    string
	Title     string
	Message   string
	Type      string
	IdeaID    *string
	ActorID   *string
	Read      bool
	CreatedAt time.Time
}

type Attachment struct {
	ID          string
	IdeaID      string
	Filename    string
	ContentType string
	Size        int64
	ObjectKey   string
	CreatedAt   time.Time
}

type StatusChange struct {
	ID         string
	IdeaID     string
	FromStatus string
	ToStatus   string
	Note       string
	ChangedBy  string
	CreatedAt  time.Time

	ChangedByName string
}

// IdeaUpdate carries a partial edit. Nil fields are left untouched.
type IdeaUpdate struct {
	Title            *string
	Description      *string
	Category         *string
	Department       *string
	Priority         *string
	Tags             *[]string
	Impact           *string
	Inspiration      *string
	SimilarSolutions *string
	AdminNotes       *string
	CostSaved        *float64
	RevenueGenerated *float64
}

// IdeaFilter narrows ListIdeas. Zero values mean "no constraint".
type IdeaFilter struct {
	Status      string
	Category    string
	Department  string
	Tag         string
	SubmitterID string
	AssignedTo  string
	Sort        string // new | top | active
	Limit       int
	Offset      int
}

type LeaderboardFilter struct {
	From       *time.Time
	To         *time.Time
	Category   string
	Department string
	Limit      int
}

type LeaderboardRow struct {
	UserID        string
	DisplayName   string
	Department    string
	AvatarURL     string
	Submissions   int
	Implemented   int
	VotesReceived int
	ImpactScore   int
	Ideas         int
	PainPoints    int
	Challenges    int
}

type Metrics struct {
	TotalIdeas       int
	TotalUsers       int
	TotalVotes       int
	TotalComments    int
	ByStatus         map[string]int
	ByCategory       map[string]int
	Implemented      int
	CostSaved        float64
	RevenueGenerated float64
}

type CountByLabel struct {
	Label string
	Count int
}

type TimeCount struct {
	Day   time.Time
	Count int
}

type CommitInfo struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
}
