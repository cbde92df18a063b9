package engine

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/lazypower/kura/internal/store"
)

const (
	// existingThreshold is the affinity above which an existing project wins
	// outright.
	existingThreshold = 0.82
	// fallbackThreshold is the affinity above which an existing project is
	// kept as a fallback behind pattern detection.
	fallbackThreshold = 0.5
	// temporaryThreshold marks projects whose latest classification is weak.
	temporaryThreshold = 0.6

	defaultConfidence = 0.5
	patternExisting   = 0.9
	patternNew        = 0.8

	affinityProjects = 5
	affinityRooms    = 10
	affinityMessages = 5
)

// Classification sources.
const (
	SourceExisting = "existing"
	SourcePattern  = "pattern"
	SourceNew      = "new"
)

// File is an uploaded file; only its name feeds classification.
type File struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type,omitempty"`
}

// Input is the text to classify and whose it is. Room is optional; when it
// is set and manually locked, classification short-circuits.
type Input struct {
	Text    string
	Files   []File
	History []string
	OwnerID int64
	Room    *store.Room
}

// combined joins the text, file names and history with single spaces.
func (in Input) combined() string {
	parts := make([]string, 0, 1+len(in.Files)+len(in.History))
	parts = append(parts, in.Text)
	for _, f := range in.Files {
		parts = append(parts, f.Name)
	}
	parts = append(parts, in.History...)
	return strings.Join(parts, " ")
}

// Classification is a routing decision. Reason is for logs only.
type Classification struct {
	ProjectID  int64   `json:"project_id"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	Source     string  `json:"source"`
}

type affinity struct {
	projectID int64
	score     float64
}

// Classify decides which project the input belongs to. The first applicable
// rule wins:
//
//  1. a manually locked room keeps its project
//  2. empty input goes to the default project
//  3. strong affinity with a recent project
//  4. a strong category pattern, into a matching or new project
//  5. moderate affinity with a recent project
//  6. the default project
//
// Every rule but the first rewrites the chosen project's temporary flag.
func (e *Engine) Classify(ctx context.Context, in Input) (*Classification, error) {
	if in.Room != nil && in.Room.Manual() {
		projectID, err := e.lockedProject(ctx, in.OwnerID, in.Room)
		if err != nil {
			return nil, err
		}
		return e.decided(in.OwnerID, &Classification{
			ProjectID:  projectID,
			Confidence: 1.0,
			Reason:     "room is manually locked",
			Source:     SourceExisting,
		}), nil
	}

	c, err := e.classify(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := e.DB.SetProjectTemporary(ctx, c.ProjectID, c.Confidence < temporaryThreshold); err != nil {
		return nil, fmt.Errorf("mark project: %w", err)
	}
	return e.decided(in.OwnerID, c), nil
}

func (e *Engine) classify(ctx context.Context, in Input) (*Classification, error) {
	text := in.combined()
	if strings.TrimSpace(text) == "" {
		return e.toDefault(ctx, in.OwnerID, "no text input")
	}

	best, err := e.bestAffinity(ctx, in.OwnerID, text)
	if err != nil {
		return nil, err
	}
	if best.projectID != 0 && best.score > existingThreshold {
		return &Classification{
			ProjectID:  best.projectID,
			Confidence: best.score,
			Reason:     fmt.Sprintf("matched existing project (similarity %.2f)", best.score),
			Source:     SourceExisting,
		}, nil
	}

	if m, ok := e.Patterns.Detect(text); ok && m.Strong() {
		existing, err := e.DB.FindProjectByNameContaining(ctx, in.OwnerID, m.Category)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &Classification{
				ProjectID:  existing.ID,
				Confidence: m.Confidence * patternExisting,
				Reason:     fmt.Sprintf("pattern %s (confidence %.2f)", m.Category, m.Confidence),
				Source:     SourcePattern,
			}, nil
		}

		confidence := m.Confidence * patternNew
		name := projectName(m.Category, text)
		p, err := e.DB.CreateProject(ctx, in.OwnerID, name, confidence < temporaryThreshold)
		if err != nil {
			return nil, err
		}
		return &Classification{
			ProjectID:  p.ID,
			Confidence: confidence,
			Reason:     fmt.Sprintf("created project %q for pattern %s", name, m.Category),
			Source:     SourceNew,
		}, nil
	}

	if best.projectID != 0 && best.score > fallbackThreshold {
		return &Classification{
			ProjectID:  best.projectID,
			Confidence: best.score,
			Reason:     fmt.Sprintf("best existing match (similarity %.2f)", best.score),
			Source:     SourceExisting,
		}, nil
	}

	return e.toDefault(ctx, in.OwnerID, "no strong match")
}

func (e *Engine) toDefault(ctx context.Context, ownerID int64, reason string) (*Classification, error) {
	p, err := e.DB.GetOrCreateDefaultProject(ctx, ownerID, e.Options.DefaultProjectName)
	if err != nil {
		return nil, err
	}
	return &Classification{
		ProjectID:  p.ID,
		Confidence: defaultConfidence,
		Reason:     reason + ", using default project",
		Source:     SourceExisting,
	}, nil
}

func (e *Engine) lockedProject(ctx context.Context, ownerID int64, room *store.Room) (int64, error) {
	if room.ProjectID != nil {
		return *room.ProjectID, nil
	}
	p, err := e.DB.GetOrCreateDefaultProject(ctx, ownerID, e.Options.DefaultProjectName)
	if err != nil {
		return 0, err
	}
	return p.ID, nil
}

// bestAffinity scores the owner's most recently updated projects against
// text. A project scores the mean of its name similarity and its best
// message similarity; a project without messages scores on its name alone,
// and an exact name match scores 1. Ties keep recency order.
func (e *Engine) bestAffinity(ctx context.Context, ownerID int64, text string) (affinity, error) {
	projects, err := e.DB.ListProjects(ctx, ownerID, affinityProjects)
	if err != nil {
		return affinity{}, err
	}

	var best affinity
	for _, p := range projects {
		score, err := e.projectAffinity(ctx, ownerID, p, text)
		if err != nil {
			return affinity{}, err
		}
		if best.projectID == 0 || score > best.score {
			best = affinity{projectID: p.ID, score: score}
		}
	}
	return best, nil
}

func (e *Engine) projectAffinity(ctx context.Context, ownerID int64, p store.Project, text string) (float64, error) {
	nameScore := e.Score(text, p.Name)
	if nameScore >= 1 {
		return 1, nil
	}

	rooms, err := e.DB.ListProjectRooms(ctx, ownerID, p.ID, "", affinityRooms)
	if err != nil {
		return 0, err
	}

	seen := false
	var msgScore float64
	for _, r := range rooms {
		msgs, err := e.Messages.RecentMessages(ctx, r.ID, affinityMessages)
		if err != nil {
			return 0, fmt.Errorf("messages for room %d: %w", r.ID, err)
		}
		for _, m := range msgs {
			seen = true
			if s := e.Score(text, m.Content); s > msgScore {
				msgScore = s
			}
		}
	}
	if !seen {
		return nameScore, nil
	}
	return (nameScore + msgScore) / 2, nil
}

// projectName builds "{category} - {keyword}" where keyword is the first
// whitespace-separated word longer than three characters.
func projectName(category, text string) string {
	for _, w := range strings.Fields(text) {
		if utf8.RuneCountInString(w) > 3 {
			return category + " - " + w
		}
	}
	return category
}

func (e *Engine) decided(ownerID int64, c *Classification) *Classification {
	e.Metrics.RecordClassification(c.Source, c.Confidence)
	e.log.Debug("classified",
		zap.Int64("owner_id", ownerID),
		zap.Int64("project_id", c.ProjectID),
		zap.Float64("confidence", c.Confidence),
		zap.String("source", c.Source),
		zap.String("reason", c.Reason),
	)
	return c
}
