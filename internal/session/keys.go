// Package session holds the reconciliation cache of one viewing session:
// last used stages, custom grid snapshots, reuse ids, toggle records and
// viewports by position.
package session

import "fmt"

// ActiveDisplaySetReuseID is the reuse id recorded for the first display
// set of the active viewport.
const ActiveDisplaySetReuseID = "activeDisplaySet"

// HPInfo identifies what is currently applied.
type HPInfo struct {
	ProtocolID     string
	StageID        string
	StageIndex     int
	ActiveStudyUID string
}

// Applied reports whether a protocol has been applied.
func (h HPInfo) Applied() bool {
	return h.ProtocolID != ""
}

// ProtocolKey is the key of the last used stage of a protocol for a study.
type ProtocolKey struct {
	StudyUID   string
	ProtocolID string
}

func (k ProtocolKey) String() string {
	return fmt.Sprintf("%s:%s", k.StudyUID, k.ProtocolID)
}

// StageKey identifies one stage of a protocol for a study.
type StageKey struct {
	StudyUID   string
	ProtocolID string
	StageIndex int
}

func (k StageKey) String() string {
	return fmt.Sprintf("%s:%s:%d", k.StudyUID, k.ProtocolID, k.StageIndex)
}

// ReuseKey identifies a reuse id within a study.
type ReuseKey struct {
	StudyUID string
	ReuseID  string
}

func (k ReuseKey) String() string {
	return fmt.Sprintf("%s:%s", k.StudyUID, k.ReuseID)
}

// ToggleTarget is where toggling off a protocol returns to.
type ToggleTarget struct {
	ProtocolID string
	StageIndex int
}

// StageKeyOf returns the stage key of info.
func StageKeyOf(info HPInfo) StageKey {
	return StageKey{StudyUID: info.ActiveStudyUID, ProtocolID: info.ProtocolID, StageIndex: info.StageIndex}
}

// ProtocolKeyOf returns the protocol key of info.
func ProtocolKeyOf(info HPInfo) ProtocolKey {
	return ProtocolKey{StudyUID: info.ActiveStudyUID, ProtocolID: info.ProtocolID}
}
