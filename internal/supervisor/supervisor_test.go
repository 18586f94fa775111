package supervisor

import (
	"bufio"
	"net"
	"testing"

	"callcore/internal/amiclient"
	"callcore/internal/amiproto"
	"callcore/internal/correlator"
	"callcore/internal/dispatcher"
	"callcore/internal/settings"
)

// fakeAMI wires a dispatcher to an in-memory pipe and lets a test script a
// sequence of canned responses, one per action the supervisor sends.
type fakeAMI struct {
	server net.Conn
	d      *dispatcher.Dispatcher
}

func newFakeAMI(t *testing.T, respond func(action *amiproto.Message) *amiproto.Message) *fakeAMI {
	t.Helper()
	server, client := net.Pipe()
	c := amiclient.NewForTesting(client, bufio.NewReader(client))

	go func() {
		fr := amiproto.NewFrameReader(bufio.NewReader(server))
		for {
			action, err := fr.ReadFrame()
			if err != nil {
				return
			}
			resp := respond(action)
			resp.Set("ActionID", action.Get("ActionID"))
			if _, err := server.Write(resp.Encode()); err != nil {
				return
			}
		}
	}()

	t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	return &fakeAMI{server: server, d: dispatcher.New(c)}
}

func successResponder(msg string) func(*amiproto.Message) *amiproto.Message {
	return func(action *amiproto.Message) *amiproto.Message {
		resp := amiproto.NewMessage()
		resp.Set("Response", "Success")
		resp.Set("Message", msg)
		return resp
	}
}

func errorResponder(msg string) func(*amiproto.Message) *amiproto.Message {
	return func(action *amiproto.Message) *amiproto.Message {
		resp := amiproto.NewMessage()
		resp.Set("Response", "Error")
		resp.Set("Message", msg)
		return resp
	}
}

func TestHangup_NoActiveCall(t *testing.T) {
	corr := correlator.New([]string{"100"}, settings.DefaultMeaningfulNumberRules(), nil, nil, nil)
	fake := newFakeAMI(t, successResponder("ok"))
	s := New(corr, fake.d)

	result := s.Hangup("100")
	if result.Success {
		t.Fatal("Hangup() on an idle extension should fail, got success")
	}
}

func TestHangup_ActiveCallSendsAction(t *testing.T) {
	corr := correlator.New([]string{"100"}, settings.DefaultMeaningfulNumberRules(), nil, nil, nil)
	seedActiveCall(corr, "100", "PJSIP/100-00000001")

	fake := newFakeAMI(t, successResponder("Channel Hangup Called"))
	s := New(corr, fake.d)

	result := s.Hangup("100")
	if !result.Success {
		t.Fatalf("Hangup() failed: %s", result.Message)
	}
}

func TestHangup_AMIErrorIsSurfaced(t *testing.T) {
	corr := correlator.New([]string{"100"}, settings.DefaultMeaningfulNumberRules(), nil, nil, nil)
	seedActiveCall(corr, "100", "PJSIP/100-00000001")

	fake := newFakeAMI(t, errorResponder("No such channel"))
	s := New(corr, fake.d)

	result := s.Hangup("100")
	if result.Success {
		t.Fatal("Hangup() should fail when AMI returns an Error response")
	}
}

func TestQueueRemove_StaticMemberGetsFriendlierMessage(t *testing.T) {
	corr := correlator.New(nil, settings.DefaultMeaningfulNumberRules(), nil, nil, nil)
	fake := newFakeAMI(t, errorResponder("Unable to remove interface: Not dynamic"))
	s := New(corr, fake.d)

	result := s.QueueRemove("sales", "PJSIP/100")
	if result.Success {
		t.Fatal("QueueRemove() of a static member should fail")
	}
	if result.Message == "" {
		t.Fatal("expected a non-empty failure message")
	}
}

func TestQueueAdd_AppliesOptimisticPauseHint(t *testing.T) {
	corr := correlator.New(nil, settings.DefaultMeaningfulNumberRules(), nil, nil, nil)
	// seed the queue/member so QueueMutationHint has something to update
	corr.Dispatch(eventMsg(
		"Event", "QueueMemberAdded",
		"Queue", "sales",
		"Interface", "PJSIP/100",
		"MemberName", "Agent100",
	))

	fake := newFakeAMI(t, successResponder("Added"))
	s := New(corr, fake.d)

	result := s.QueueAdd("sales", "PJSIP/100", "Agent100", 0, true)
	if !result.Success {
		t.Fatalf("QueueAdd() failed: %s", result.Message)
	}

	queues := corr.QueuesView()
	member := queues["sales"].Members["PJSIP/100"]
	if !member.Paused {
		t.Error("expected optimistic pause hint to mark the member paused")
	}
}

func TestListenWhisperBarge_BuildChanSpyOriginate(t *testing.T) {
	tests := []struct {
		name string
		call func(s *Supervisor, supervisorExt, target string) Result
	}{
		{"listen", (*Supervisor).Listen},
		{"whisper", (*Supervisor).Whisper},
		{"barge", (*Supervisor).Barge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			corr := correlator.New([]string{"200"}, settings.DefaultMeaningfulNumberRules(), nil, nil, nil)
			seedActiveCall(corr, "200", "PJSIP/200-00000099")

			var seenApp, seenData string
			fake := newFakeAMI(t, func(action *amiproto.Message) *amiproto.Message {
				seenApp = action.Get("Application")
				seenData = action.Get("Data")
				resp := amiproto.NewMessage()
				resp.Set("Response", "Success")
				return resp
			})
			s := New(corr, fake.d)

			result := tt.call(s, "100", "200")
			if !result.Success {
				t.Fatalf("%s failed: %s", tt.name, result.Message)
			}
			if seenApp != "ChanSpy" {
				t.Errorf("Application = %q, want ChanSpy", seenApp)
			}
			wantPrefix := "PJSIP/200,"
			if len(seenData) < len(wantPrefix) || seenData[:len(wantPrefix)] != wantPrefix {
				t.Errorf("Data = %q, want it to start with %q (channel with its trailing -nnnnnnnn suffix stripped)", seenData, wantPrefix)
			}
		})
	}
}

func seedActiveCall(corr *correlator.Correlator, extension, channel string) {
	corr.Dispatch(eventMsg(
		"Event", "Newchannel",
		"Channel", channel,
		"Uniqueid", "1.1",
		"Linkedid", "1.1",
		"CallerIDNum", extension,
	))
}

func eventMsg(pairs ...string) *amiproto.Message {
	m := amiproto.NewMessage()
	for i := 0; i+1 < len(pairs); i += 2 {
		m.Set(pairs[i], pairs[i+1])
	}
	return m
}
