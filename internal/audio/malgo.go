package audio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// malgoBackend opens devices through miniaudio.
type malgoBackend struct{}

// malgoHandle owns a started device and its context.
type malgoHandle struct {
	once   sync.Once
	ctx    *malgo.AllocatedContext
	device *malgo.Device
}

func (h *malgoHandle) Close() {
	h.once.Do(func() {
		if h.device != nil {
			_ = h.device.Stop()
			h.device.Uninit()
		}
		if h.ctx != nil {
			_ = h.ctx.Uninit()
			h.ctx.Free()
		}
	})
}

func initContext() (*malgo.AllocatedContext, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return ctx, nil
}

func (malgoBackend) OpenCapture(f Format, onData func(frame []byte)) (captureHandle, error) {
	ctx, err := initContext()
	if err != nil {
		return nil, err
	}
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(f.Channels)
	cfg.SampleRate = uint32(f.SampleRate)

	dev, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			if len(input) > 0 {
				onData(input)
			}
		},
	})
	if err != nil {
		h := &malgoHandle{ctx: ctx}
		h.Close()
		return nil, fmt.Errorf("init capture device: %w", err)
	}
	h := &malgoHandle{ctx: ctx, device: dev}
	if err := dev.Start(); err != nil {
		h.Close()
		return nil, fmt.Errorf("start capture device: %w", err)
	}
	return h, nil
}

func (malgoBackend) ListCapture() ([]DeviceInfo, error) {
	ctx, err := initContext()
	if err != nil {
		return nil, err
	}
	defer (&malgoHandle{ctx: ctx}).Close()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerate capture devices: %w", err)
	}
	out := make([]DeviceInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, DeviceInfo{Name: info.Name(), IsDefault: info.IsDefault != 0})
	}
	return out, nil
}

// openSilentPlayback starts a playback device that renders silence. It is
// the throwaway output used to wake the audio subsystem.
func openSilentPlayback(f Format) (captureHandle, error) {
	ctx, err := initContext()
	if err != nil {
		return nil, err
	}
	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(f.Channels)
	cfg.SampleRate = uint32(f.SampleRate)

	dev, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(output, _ []byte, _ uint32) {
			clear(output)
		},
	})
	if err != nil {
		(&malgoHandle{ctx: ctx}).Close()
		return nil, fmt.Errorf("init playback device: %w", err)
	}
	h := &malgoHandle{ctx: ctx, device: dev}
	if err := dev.Start(); err != nil {
		h.Close()
		return nil, fmt.Errorf("start playback device: %w", err)
	}
	return h, nil
}
