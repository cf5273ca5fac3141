// Package audio resolves pre-rendered narration files into the per-question
// manifest the video composition consumes.
package audio

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrMissingAnswer = errors.New("missing correct answer")
	ErrInvalidAnswer = errors.New("invalid correct answer")
	ErrAudioNotFound = errors.New("narration audio not found")
	ErrBadFileName   = errors.New("invalid narration file name")
)

// Narration file names encode duration and narrator, e.g.
// narration_1_15Juan.mp3 -> duration 15s, narrator "Juan".
var fileNameRe = regexp.MustCompile(`_(\d+)([a-zA-Z]+)\.mp3$`)

const (
	extraCountdownSeconds = 5
	revealSeconds         = 2
)

var answerIndex = map[string]int{"a": 0, "b": 1, "c": 2, "d": 3}

type Narration struct {
	DurationSeconds int
	Narrator        string
}

func ParseFileName(name string) (Narration, bool) {
	m := fileNameRe.FindStringSubmatch(name)
	if m == nil {
		return Narration{}, false
	}
	duration, err := strconv.Atoi(m[1])
	if err != nil {
		return Narration{}, false
	}
	return Narration{DurationSeconds: duration, Narrator: m[2]}, true
}

type Item struct {
	Question            string   `json:"question"`
	Image               string   `json:"image"`
	Options             []string `json:"options"`
	CorrectIndex        int      `json:"correctIndex"`
	CountdownSeconds    int      `json:"countdownSeconds"`
	RevealSeconds       int      `json:"revealSeconds"`
	NarrationURL        string   `json:"narrationUrl"`
	ExplanationAudioURL string   `json:"explanationAudioUrl"`
}

// Builder turns raw question rows (positional string keys "0".."8") into
// manifest items backed by files in the voices directory.
type Builder struct {
	voicesDir    string
	imageBaseURL string
}

func NewBuilder(voicesDir, imageBaseURL string) *Builder {
	return &Builder{voicesDir: voicesDir, imageBaseURL: imageBaseURL}
}

func (b *Builder) Build(rows []map[string]interface{}) ([]Item, error) {
	entries, err := os.ReadDir(b.voicesDir)
	if err != nil {
		return nil, fmt.Errorf("read voices dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}

	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		item, err := b.buildItem(row, names)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (b *Builder) buildItem(row map[string]interface{}, names []string) (Item, error) {
	questionID := field(row, "0")
	question := field(row, "1")
	options := []string{field(row, "2"), field(row, "3"), field(row, "4"), field(row, "5")}

	letter := strings.ToLower(field(row, "7"))
	if letter == "" {
		return Item{}, fmt.Errorf("%w for question %s", ErrMissingAnswer, questionID)
	}
	correctIndex, ok := answerIndex[letter]
	if !ok {
		return Item{}, fmt.Errorf("%w (%s) for question %s", ErrInvalidAnswer, letter, questionID)
	}

	image := ""
	if raw := field(row, "8"); raw != "" && !strings.EqualFold(raw, "null") {
		image = b.imageBaseURL + raw
	}

	fileName := ""
	for _, name := range names {
		if strings.Contains(name, "_"+questionID+"_") {
			fileName = name
			break
		}
	}
	if fileName == "" {
		return Item{}, fmt.Errorf("%w for question %s", ErrAudioNotFound, questionID)
	}

	narration, ok := ParseFileName(fileName)
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", ErrBadFileName, fileName)
	}

	return Item{
		Question:            question,
		Image:               image,
		Options:             options,
		CorrectIndex:        correctIndex,
		CountdownSeconds:    narration.DurationSeconds + extraCountdownSeconds,
		RevealSeconds:       revealSeconds,
		NarrationURL:        "/voices/" + fileName,
		ExplanationAudioURL: "/voices/explanation_" + letter + ".mp3",
	}, nil
}

// field stringifies a row value; JSON numbers come through as float64.
func field(row map[string]interface{}, key string) string {
	switch v := row[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
