// Package pose defines body landmark frames and the geometry computed from them.
package pose

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Joint is a body landmark index following the 33-point MediaPipe pose layout.
type Joint int

const (
	Nose           Joint = 0
	LeftEye        Joint = 2
	RightEye       Joint = 5
	LeftEar        Joint = 7
	RightEar       Joint = 8
	LeftShoulder   Joint = 11
	RightShoulder  Joint = 12
	LeftElbow      Joint = 13
	RightElbow     Joint = 14
	LeftWrist      Joint = 15
	RightWrist     Joint = 16
	LeftHip        Joint = 23
	RightHip       Joint = 24
	LeftKnee       Joint = 25
	RightKnee      Joint = 26
	LeftAnkle      Joint = 27
	RightAnkle     Joint = 28
	LeftHeel       Joint = 29
	RightHeel      Joint = 30
	LeftFootIndex  Joint = 31
	RightFootIndex Joint = 32

	NumJoints = 33
)

// ErrJointOutOfRange is returned when decoding a landmark with an unknown id.
var ErrJointOutOfRange = errors.New("pose: joint id out of range")

// Valid reports whether j is a known landmark index.
func (j Joint) Valid() bool {
	return j >= 0 && j < NumJoints
}

// Landmark is one tracked joint. X and Y are normalized to the image (0..1,
// y grows downward); Confidence is the detector's visibility score.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"c"`
}

// Frame holds every landmark produced for one captured image. Joints the
// detector did not report have zero confidence.
type Frame struct {
	Time      time.Time
	Landmarks [NumJoints]Landmark
}

// NewFrame builds a frame from a sparse joint map.
func NewFrame(t time.Time, lms map[Joint]Landmark) Frame {
	f := Frame{Time: t}
	for j, lm := range lms {
		if j.Valid() {
			f.Landmarks[j] = lm
		}
	}
	return f
}

type jointLandmark struct {
	ID Joint `json:"id"`
	Landmark
}

type frameJSON struct {
	Time      time.Time       `json:"t"`
	Landmarks []jointLandmark `json:"landmarks"`
}

// MarshalJSON emits only the joints that were detected.
func (f Frame) MarshalJSON() ([]byte, error) {
	out := frameJSON{Time: f.Time, Landmarks: make([]jointLandmark, 0, NumJoints)}
	for i, lm := range f.Landmarks {
		if lm.Confidence > 0 {
			out.Landmarks = append(out.Landmarks, jointLandmark{ID: Joint(i), Landmark: lm})
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the sparse wire form.
func (f *Frame) UnmarshalJSON(data []byte) error {
	var in frameJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	var next Frame
	next.Time = in.Time
	for _, lm := range in.Landmarks {
		if !lm.ID.Valid() {
			return fmt.Errorf("%w: %d", ErrJointOutOfRange, lm.ID)
		}
		next.Landmarks[lm.ID] = lm.Landmark
	}
	*f = next
	return nil
}
