package device

import (
	"fmt"
	"net/url"
	"strings"
)

// Device はキャプチャ端末を表す
type Device struct {
	ID       int    `json:"id"`       // 登録順の1始まりの番号
	Endpoint string `json:"endpoint"` // 端末のベースURL
}

// Label は元の実装と同じ "Client N" 形式の表示名を返す
func (d Device) Label() string {
	return fmt.Sprintf("Client %d", d.ID)
}

// URL はベースURLにパスを連結したURLを返す
func (d Device) URL(path string) string {
	return strings.TrimRight(d.Endpoint, "/") + "/" + strings.TrimLeft(path, "/")
}

// Registry は端末の順序付き一覧
type Registry struct {
	devices []Device
}

// NewRegistry はエンドポイント一覧からRegistryを作成する
func NewRegistry(endpoints []string) (*Registry, error) {
	devices := make([]Device, 0, len(endpoints))
	for i, endpoint := range endpoints {
		u, err := url.Parse(endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("端末 %d のURLが無効です: %q", i+1, endpoint)
		}
		devices = append(devices, Device{ID: i + 1, Endpoint: endpoint})
	}

	return &Registry{devices: devices}, nil
}

// Devices は端末一覧のスナップショットを返す
func (r *Registry) Devices() []Device {
	snapshot := make([]Device, len(r.devices))
	copy(snapshot, r.devices)
	return snapshot
}

// Get は指定されたIDの端末を取得する
func (r *Registry) Get(id int) (Device, bool) {
	if id < 1 || id > len(r.devices) {
		return Device{}, false
	}
	return r.devices[id-1], true
}

// Len は登録されている端末数を返す
func (r *Registry) Len() int {
	return len(r.devices)
}
