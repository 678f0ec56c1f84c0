//go:build linux

package canbus

import (
	"context"
	"reflect"
	"testing"
)

func TestSocketCANDriverLinkCommands(t *testing.T) {
	tests := []struct {
		name    string
		driver  *SocketCANDriver
		bitrate uint32
		want    [][]string
	}{
		{
			name:   "nothing to apply",
			driver: NewSocketCANDriver("can0"),
		},
		{
			name:    "bitrate only",
			driver:  NewSocketCANDriver("can0"),
			bitrate: 1000000,
			want:    [][]string{{"link", "set", "dev", "can0", "type", "can", "bitrate", "1000000"}},
		},
		{
			name:   "restart without bitrate",
			driver: NewSocketCANDriver("can1", WithRestartMs(100)),
			want:   [][]string{{"link", "set", "dev", "can1", "type", "can", "restart-ms", "100"}},
		},
		{
			name:    "all settings",
			driver:  NewSocketCANDriver("can0", WithRestartMs(0), WithTxQueueLen(1000)),
			bitrate: 500000,
			want: [][]string{
				{"link", "set", "dev", "can0", "txqueuelen", "1000"},
				{"link", "set", "dev", "can0", "type", "can", "bitrate", "500000", "restart-ms", "0"},
			},
		},
	}
	for _, tc := range tests {
		opts := tc.driver.linkOptions(tc.bitrate)
		if got := opts.Empty(); got != (tc.want == nil) {
			t.Fatalf("%s: Empty() = %v", tc.name, got)
		}
		if got := ipCommands(tc.driver.iface, opts); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s: commands = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestSocketCANDriverRequiresInit(t *testing.T) {
	d := NewSocketCANDriver("can0")
	if err := d.Send(context.Background(), MustFrame(0x1, nil)); err != ErrNotInitialized {
		t.Fatalf("Send before Init: got %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close before Init: %v", err)
	}
}
