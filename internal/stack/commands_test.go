package stack

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/bluecore-io/bluecore/internal/arbiter"
	"github.com/bluecore-io/bluecore/internal/device"
	"github.com/bluecore-io/bluecore/internal/profile"
)

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type fakePub struct {
	published []published
	err       error
}

func (f *fakePub) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, published{topic: topic, payload: payload, qos: qos, retained: retained})
	return nil
}

// lastCommand decodes the most recent publish.
func lastCommand(t *testing.T, pub *fakePub) (string, command) {
	t.Helper()

	if len(pub.published) == 0 {
		t.Fatal("nothing published")
	}
	p := pub.published[len(pub.published)-1]
	var cmd command
	if err := json.Unmarshal(p.payload, &cmd); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if cmd.ID == "" {
		t.Error("command published without an ID")
	}
	if p.qos != 1 || p.retained {
		t.Errorf("published qos=%d retained=%v, want qos=1 retained=false", p.qos, p.retained)
	}
	return p.topic, cmd
}

func TestCommands_ConnectRequest(t *testing.T) {
	pub := &fakePub{}
	c := NewCommands(pub)

	if err := c.ConnectRequest(profile.LEAudio, addrBuds); err != nil {
		t.Fatalf("ConnectRequest() error = %v", err)
	}

	topic, cmd := lastCommand(t, pub)
	if topic != "bluecore/command/le_audio/"+addrBuds {
		t.Errorf("topic = %q", topic)
	}
	if cmd.Op != OpConnect || cmd.Address != addrBuds || cmd.Profile != string(profile.LEAudio) {
		t.Errorf("command = %+v", cmd)
	}
}

func TestCommands_DisconnectRequest(t *testing.T) {
	pub := &fakePub{}
	c := NewCommands(pub)

	if err := c.DisconnectRequest(profile.Headset, addrBuds); err != nil {
		t.Fatalf("DisconnectRequest() error = %v", err)
	}

	topic, cmd := lastCommand(t, pub)
	if topic != "bluecore/command/hfp/"+addrBuds {
		t.Errorf("topic = %q", topic)
	}
	if cmd.Op != OpDisconnect {
		t.Errorf("op = %q, want disconnect", cmd.Op)
	}
}

func TestCommands_GroupSetActive(t *testing.T) {
	pub := &fakePub{}
	c := NewCommands(pub)

	if err := c.GroupSetActive(3, true); err != nil {
		t.Fatalf("GroupSetActive() error = %v", err)
	}
	topic, cmd := lastCommand(t, pub)
	if topic != "bluecore/command/group/3" {
		t.Errorf("topic = %q", topic)
	}
	if cmd.Op != OpSetActive || cmd.Active == nil || !*cmd.Active {
		t.Errorf("command = %+v, want set_active true", cmd)
	}

	if err := c.GroupSetActive(3, false); err != nil {
		t.Fatalf("GroupSetActive(false) error = %v", err)
	}
	_, cmd = lastCommand(t, pub)
	if cmd.Active == nil || *cmd.Active {
		t.Errorf("command = %+v, want set_active false", cmd)
	}
}

func TestCommands_PreferredProfileChanged(t *testing.T) {
	pub := &fakePub{}
	c := NewCommands(pub)

	c.PreferredProfileChanged(addrBuds, device.DirectionOutput, profile.A2DP)

	topic, cmd := lastCommand(t, pub)
	if topic != "bluecore/command/adapter" {
		t.Errorf("topic = %q", topic)
	}
	if cmd.Op != OpSetPreferredProfile || cmd.Direction != "output" || cmd.Profile != string(profile.A2DP) {
		t.Errorf("command = %+v", cmd)
	}
}

func TestCommands_PreferredProfileChangedSwallowsPublishError(t *testing.T) {
	pub := &fakePub{err: errors.New("broker gone")}
	c := NewCommands(pub)

	// Must not panic; the negotiation window times out on its own.
	c.PreferredProfileChanged(addrBuds, device.DirectionInput, profile.Headset)
}

func TestCommands_ActiveDeviceChanged(t *testing.T) {
	pub := &fakePub{}
	c := NewCommands(pub)

	c.ActiveDeviceChanged(device.DirectionOutput, addrBuds, addrBudsTwo,
		arbiter.RouteInfo{SuppressNoisy: true, Volume: 87})

	topic, cmd := lastCommand(t, pub)
	if topic != "bluecore/command/adapter" {
		t.Errorf("topic = %q", topic)
	}
	if cmd.Op != OpActiveDeviceChanged || cmd.Address != addrBuds || cmd.PrevAddress != addrBudsTwo {
		t.Errorf("command = %+v", cmd)
	}
	if cmd.Route == nil || !cmd.Route.SuppressNoisy || cmd.Route.Volume != 87 {
		t.Errorf("route = %+v, want suppress_noisy volume 87", cmd.Route)
	}
}

func TestCommands_PublishFailureWrapped(t *testing.T) {
	pub := &fakePub{err: errors.New("broker gone")}
	c := NewCommands(pub)

	err := c.ConnectRequest(profile.A2DP, addrBuds)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("error = %v, want ErrPublishFailed", err)
	}
}

func TestCommands_UniqueIDs(t *testing.T) {
	pub := &fakePub{}
	c := NewCommands(pub)

	for i := 0; i < 3; i++ {
		if err := c.ConnectRequest(profile.A2DP, addrBuds); err != nil {
			t.Fatalf("ConnectRequest() error = %v", err)
		}
	}

	seen := make(map[string]bool)
	for _, p := range pub.published {
		var cmd command
		if err := json.Unmarshal(p.payload, &cmd); err != nil {
			t.Fatalf("decoding payload: %v", err)
		}
		if seen[cmd.ID] {
			t.Fatalf("duplicate command ID %s", cmd.ID)
		}
		seen[cmd.ID] = true
	}
}
