package routing

import (
	"errors"
	"testing"

	"github.com/banshee-data/lidarscan/internal/scanner"
)

func mustRouter(t *testing.T, tags *TagTable, rules []ChannelRule, reject []string) *Router {
	t.Helper()
	r, err := NewRouter(tags, rules, reject)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return r
}

func TestTagTable_Intern(t *testing.T) {
	tags := NewTagTable("Ground", "Wall")
	if got := tags.Intern("Ground"); got != 1 {
		t.Errorf("Ground = %d, want 1", got)
	}
	if got := tags.Intern("Wall"); got != 2 {
		t.Errorf("Wall = %d, want 2", got)
	}
	if got := tags.Intern(""); got != scanner.CategoryNone {
		t.Errorf("empty tag = %d, want CategoryNone", got)
	}
	if got := tags.Name(2); got != "Wall" {
		t.Errorf("Name(2) = %q, want Wall", got)
	}
	if got := tags.Name(99); got != "" {
		t.Errorf("Name(99) = %q, want empty", got)
	}
	if _, err := tags.Lookup("Roof"); !errors.Is(err, scanner.ErrUnknownTag) {
		t.Errorf("Lookup(Roof) err = %v, want ErrUnknownTag", err)
	}
}

func TestRouter_FanOut(t *testing.T) {
	tags := NewTagTable()
	r := mustRouter(t, tags, []ChannelRule{
		{Name: "terrain", IncludedTags: []string{"Ground", "Wall"}},
		{Name: "hazards", IncludedTags: []string{"Lava", "Wall"}},
		{Name: "props", IncludedTags: []string{"Crate"}},
	}, nil)

	wall, _ := tags.Lookup("Wall")
	got, rejected := r.Route(wall)
	if rejected {
		t.Fatal("wall should not be rejected")
	}
	if len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Fatalf("Route(Wall) = %v, want [0 1]", got)
	}

	crate, _ := tags.Lookup("Crate")
	if got, _ := r.Route(crate); len(got) != 1 || got[0] != 2 {
		t.Fatalf("Route(Crate) = %v, want [2]", got)
	}
}

func TestRouter_UnmatchedIsDiscarded(t *testing.T) {
	tags := NewTagTable("Sky")
	r := mustRouter(t, tags, []ChannelRule{{Name: "a", IncludedTags: []string{"Ground"}}}, nil)

	sky, _ := tags.Lookup("Sky")
	got, rejected := r.Route(sky)
	if rejected || len(got) != 0 {
		t.Fatalf("Route(Sky) = %v, %v; want no channels, not rejected", got, rejected)
	}
	if got, _ := r.Route(scanner.CategoryNone); len(got) != 0 {
		t.Fatalf("Route(None) = %v, want none", got)
	}
	if got, _ := r.Route(scanner.Category(200)); len(got) != 0 {
		t.Fatalf("Route(unknown) = %v, want none", got)
	}
}

func TestRouter_GlobalRejectShortCircuits(t *testing.T) {
	tags := NewTagTable()
	r := mustRouter(t, tags, []ChannelRule{
		{Name: "a", IncludedTags: []string{"PointReject", "Ground"}},
		{Name: "b", IncludedTags: []string{"PointReject"}},
	}, []string{"PointReject"})

	c, _ := tags.Lookup("PointReject")
	got, rejected := r.Route(c)
	if !rejected || len(got) != 0 {
		t.Fatalf("Route(PointReject) = %v, %v; want rejected", got, rejected)
	}
}

func TestRouter_ChannelRejectOnlyAffectsItsChannel(t *testing.T) {
	tags := NewTagTable()
	r := mustRouter(t, tags, []ChannelRule{
		{Name: "a", IncludedTags: []string{"Glass"}, RejectTag: "Glass"},
		{Name: "b", IncludedTags: []string{"Glass"}},
	}, nil)

	glass, _ := tags.Lookup("Glass")
	got, rejected := r.Route(glass)
	if rejected {
		t.Fatal("multi-channel reject tag must not reject globally")
	}
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("Route(Glass) = %v, want [1]", got)
	}
}

func TestRouter_SingleChannelRejectIsGlobal(t *testing.T) {
	tags := NewTagTable()
	r := mustRouter(t, tags, []ChannelRule{
		{Name: "only", IncludedTags: []string{"Ground", "Player"}, RejectTag: "Player"},
	}, nil)

	player, _ := tags.Lookup("Player")
	if !r.Rejected(player) {
		t.Fatal("single channel reject tag should reject globally")
	}
}

func TestRouter_Validation(t *testing.T) {
	if _, err := NewRouter(NewTagTable(), nil, nil); !errors.Is(err, scanner.ErrInvalidConfig) {
		t.Errorf("no channels: err = %v, want ErrInvalidConfig", err)
	}
	rules := make([]ChannelRule, MaxChannels+1)
	if _, err := NewRouter(NewTagTable(), rules, nil); !errors.Is(err, scanner.ErrInvalidConfig) {
		t.Errorf("too many channels: err = %v, want ErrInvalidConfig", err)
	}
}

func TestRouter_RouteIntoDoesNotAllocateForReusedSlice(t *testing.T) {
	tags := NewTagTable()
	r := mustRouter(t, tags, []ChannelRule{
		{Name: "a", IncludedTags: []string{"Ground"}},
		{Name: "b", IncludedTags: []string{"Ground"}},
	}, nil)
	ground, _ := tags.Lookup("Ground")

	dst := make([]int, 0, 4)
	allocs := testing.AllocsPerRun(100, func() {
		dst, _ = r.RouteInto(ground, dst[:0])
	})
	if allocs != 0 {
		t.Errorf("RouteInto allocated %v times per run", allocs)
	}
}
