package fs

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gatefs/gatefs/pkg/gateway/models"
	"github.com/gatefs/gatefs/pkg/gateway/store"
)

// DefaultDirectThreshold is the Content-Length cutoff for direct-mode
// uploads when the setting is absent.
const DefaultDirectThreshold = 10 * 1024 * 1024

const settingsTTL = 30 * time.Second

// settingsView reads upload settings through a short-lived cache so WebDAV
// PUTs do not hit the settings table on every request.
type settingsView struct {
	store store.Store

	mu        sync.Mutex
	mode      string
	threshold int64
	fetchedAt time.Time
}

func newSettingsView(st store.Store) *settingsView {
	return &settingsView{store: st}
}

func (v *settingsView) refresh(ctx context.Context) {
	v.mode = models.UploadModeMultipart
	v.threshold = DefaultDirectThreshold

	if mode, err := v.store.GetSetting(ctx, models.SettingWebDAVUploadMode); err == nil {
		if mode == models.UploadModeDirect || mode == models.UploadModeMultipart {
			v.mode = mode
		}
	}
	if raw, err := v.store.GetSetting(ctx, models.SettingDirectThresholdBytes); err == nil {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			v.threshold = n
		}
	}
	v.fetchedAt = time.Now()
}

func (v *settingsView) get(ctx context.Context) (mode string, threshold int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if time.Since(v.fetchedAt) > settingsTTL {
		v.refresh(ctx)
	}
	return v.mode, v.threshold
}

// UploadSettings returns the WebDAV upload mode and direct-mode threshold.
func (f *FileSystem) UploadSettings(ctx context.Context) (mode string, directThreshold int64) {
	return f.settings.get(ctx)
}
