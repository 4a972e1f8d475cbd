package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlatformKindIsValid(t *testing.T) {
	for _, kind := range []PlatformKind{
		KindCloudDrive, KindMobileDevice, KindRemoteFilesystem, KindDesktopShare, KindWeb,
	} {
		assert.True(t, kind.IsValid(), string(kind))
	}
	assert.False(t, PlatformKind("").IsValid())
	assert.False(t, PlatformKind("tape-drive").IsValid())
}

func TestSyncDirectionIsValid(t *testing.T) {
	for _, d := range []SyncDirection{DirectionUpload, DirectionDownload, DirectionBidirectional} {
		assert.True(t, d.IsValid(), string(d))
	}
	assert.False(t, SyncDirection("").IsValid())
	assert.False(t, SyncDirection("both").IsValid())
}

func TestResolutionIsValid(t *testing.T) {
	for _, r := range []Resolution{ResolveLocal, ResolveRemote, ResolveRename, ResolveManual} {
		assert.True(t, r.IsValid(), string(r))
	}
	assert.False(t, Resolution("").IsValid())
	assert.False(t, Resolution("newest-wins").IsValid())
}

func TestOperationTerminal(t *testing.T) {
	assert.True(t, (&Operation{Status: StatusCompleted}).Terminal())
	assert.True(t, (&Operation{Status: StatusFailed}).Terminal())
	assert.False(t, (&Operation{Status: StatusInProgress}).Terminal())
	assert.False(t, (&Operation{Status: StatusPending}).Terminal())
}
