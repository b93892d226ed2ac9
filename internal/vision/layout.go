package vision

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/golang/geo/r3"

	"github.com/blackknights-robotics/motioncore/internal/geom"
)

// ErrUnknownTag is returned when a tag id is not in the field layout.
var ErrUnknownTag = errors.New("tag not in field layout")

// FieldLayout holds the field-frame poses of the AprilTags on a field.
type FieldLayout struct {
	Length float64
	Width  float64
	tags   map[int]geom.Pose3D
}

// layoutFile is the WPILib AprilTag layout JSON format.
type layoutFile struct {
	Tags []struct {
		ID   int `json:"ID"`
		Pose struct {
			Translation struct {
				X float64 `json:"x"`
				Y float64 `json:"y"`
				Z float64 `json:"z"`
			} `json:"translation"`
			Rotation struct {
				Quaternion struct {
					W float64 `json:"W"`
					X float64 `json:"X"`
					Y float64 `json:"Y"`
					Z float64 `json:"Z"`
				} `json:"quaternion"`
			} `json:"rotation"`
		} `json:"pose"`
	} `json:"tags"`
	Field struct {
		Length float64 `json:"length"`
		Width  float64 `json:"width"`
	} `json:"field"`
}

// NewFieldLayout builds a layout from tag poses.
func NewFieldLayout(length, width float64, tags map[int]geom.Pose3D) *FieldLayout {
	l := &FieldLayout{Length: length, Width: width, tags: make(map[int]geom.Pose3D, len(tags))}
	for id, p := range tags {
		l.tags[id] = p
	}
	return l
}

// LoadFieldLayout reads a WPILib layout file.
func LoadFieldLayout(path string) (*FieldLayout, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open field layout %s: %w", path, err)
	}
	defer f.Close()
	l, err := ParseFieldLayout(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// ParseFieldLayout decodes a WPILib layout document.
func ParseFieldLayout(r io.Reader) (*FieldLayout, error) {
	var doc layoutFile
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse field layout: %w", err)
	}
	tags := make(map[int]geom.Pose3D, len(doc.Tags))
	for _, t := range doc.Tags {
		if _, dup := tags[t.ID]; dup {
			return nil, fmt.Errorf("duplicate tag id %d", t.ID)
		}
		q := t.Pose.Rotation.Quaternion
		tags[t.ID] = geom.Pose3D{
			Translation: r3.Vector{X: t.Pose.Translation.X, Y: t.Pose.Translation.Y, Z: t.Pose.Translation.Z},
			Rotation:    geom.RotationFromQuaternion(q.W, q.X, q.Y, q.Z),
		}
	}
	return NewFieldLayout(doc.Field.Length, doc.Field.Width, tags), nil
}

// Tag returns the pose of tag id.
func (l *FieldLayout) Tag(id int) (geom.Pose3D, error) {
	p, ok := l.tags[id]
	if !ok {
		return geom.Pose3D{}, fmt.Errorf("tag %d: %w", id, ErrUnknownTag)
	}
	return p, nil
}

// IDs returns the tag ids in ascending order.
func (l *FieldLayout) IDs() []int {
	ids := make([]int, 0, len(l.tags))
	for id := range l.tags {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
