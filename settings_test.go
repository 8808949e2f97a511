package h2

import "testing"

func TestSettingsStateApplyRescalesWindowDelta(t *testing.T) {
	st := DefaultSettingsState()

	fr := AcquireFrame(FrameSettings).(*Settings)
	defer ReleaseFrame(fr)
	fr.Add(SettingInitialWindowSize, st.InitialWindowSize+1000)

	delta, err := st.Apply(fr)
	if err != nil {
		t.Fatal(err)
	}
	if delta != 1000 {
		t.Fatalf("got delta %d, want 1000", delta)
	}
	if st.InitialWindowSize != DefaultSettingsState().InitialWindowSize+1000 {
		t.Fatalf("unexpected InitialWindowSize: %d", st.InitialWindowSize)
	}
}

func TestSettingsStateApplyRejectsOversizedWindow(t *testing.T) {
	st := DefaultSettingsState()

	fr := AcquireFrame(FrameSettings).(*Settings)
	defer ReleaseFrame(fr)
	fr.Add(SettingInitialWindowSize, maxWindowSize+1)

	if _, err := st.Apply(fr); err == nil {
		t.Fatal("expected an error for INITIAL_WINDOW_SIZE exceeding 2^31-1")
	}
}

func TestSettingsStateApplyRejectsBadMaxFrameSize(t *testing.T) {
	st := DefaultSettingsState()

	fr := AcquireFrame(FrameSettings).(*Settings)
	defer ReleaseFrame(fr)
	fr.Add(SettingMaxFrameSize, defaultMaxFrameSize-1)

	if _, err := st.Apply(fr); err == nil {
		t.Fatal("expected an error for MAX_FRAME_SIZE below the RFC minimum")
	}
}

func TestSettingsStateToFrameOmitsDefaultEnablePush(t *testing.T) {
	st := DefaultSettingsState()
	fr := st.ToFrame(true)
	defer ReleaseFrame(fr)

	var sawPush bool
	fr.ForEach(func(id uint16, value uint32) {
		if id == SettingEnablePush {
			sawPush = true
		}
	})
	if sawPush {
		t.Fatal("ENABLE_PUSH should be omitted when it is still at its default (enabled)")
	}
}

func TestSettingsStateToFrameIncludesExplicitPushDisable(t *testing.T) {
	st := DefaultSettingsState()
	st.EnablePush = false
	fr := st.ToFrame(true)
	defer ReleaseFrame(fr)

	var sawPush bool
	var pushValue uint32
	fr.ForEach(func(id uint16, value uint32) {
		if id == SettingEnablePush {
			sawPush = true
			pushValue = value
		}
	})
	if !sawPush || pushValue != 0 {
		t.Fatal("expected an explicit ENABLE_PUSH=0 once push has been disabled")
	}
}
