package state

import (
	"errors"
	"time"

	"github.com/LashSesh/qso/internal/performance"
	"github.com/LashSesh/qso/internal/space"
)

// ErrUnknownVersion is returned for a version id the ledger does not hold.
var ErrUnknownVersion = errors.New("unknown calibration version")

// #region version
// Version is one committed calibration state.
type Version struct {
	VersionID   string
	ParentID    string
	Step        int
	Config      space.Configuration
	Performance performance.Triplet
	FieldVector []float64
	CreatedAt   time.Time
}

// #endregion version

// #region version-with-provenance
// VersionWithProvenance pairs a version with the provenance row that created it.
type VersionWithProvenance struct {
	Version
	TriggerType  string
	Decision     string
	Reason       string
	SnapshotJSON string
}

// #endregion version-with-provenance
