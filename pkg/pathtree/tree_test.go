package pathtree

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestGetNodeByPathIdempotent(t *testing.T) {
	tree := New()

	a, err := tree.GetNodeByPath("/a/b")
	if err != nil {
		t.Fatalf("GetNodeByPath: %v", err)
	}
	b, err := tree.GetNodeByPath("/a/b")
	if err != nil {
		t.Fatalf("GetNodeByPath: %v", err)
	}
	if a.ID() != b.ID() {
		t.Errorf("ID = %d, want %d", b.ID(), a.ID())
	}
	if tree.Len() != 3 {
		t.Errorf("Len() = %d, want 3", tree.Len())
	}
}

func TestGetNodeByPathTrailingSeparator(t *testing.T) {
	tree := New()

	n, err := tree.GetNodeByPath("/a/b/")
	if err != nil {
		t.Fatalf("GetNodeByPath: %v", err)
	}
	if got := n.FullPath(); got != "/a/b" {
		t.Errorf("FullPath() = %q, want %q", got, "/a/b")
	}
	if n.Kind() != KindNull {
		t.Errorf("Kind() = %v, want NULL", n.Kind())
	}
}

func TestGetNodeByPathRoot(t *testing.T) {
	tree := New()

	n, err := tree.GetNodeByPath("/")
	if err != nil {
		t.Fatalf("GetNodeByPath: %v", err)
	}
	if !n.IsRoot() {
		t.Error("IsRoot() = false, want true")
	}
	if got := n.FullPath(); got != "/" {
		t.Errorf("FullPath() = %q, want /", got)
	}
	if _, ok := n.Parent(); ok {
		t.Error("root should have no parent")
	}
}

func TestGetNodeByPathErrors(t *testing.T) {
	tests := []struct {
		path string
		want error
	}{
		{"", ErrEmptyPath},
		{"a/b", ErrNotAbsolute},
		{"/a//b", ErrEmptyComponent},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			tree := New()
			if _, err := tree.GetNodeByPath(tt.path); !errors.Is(err, tt.want) {
				t.Errorf("GetNodeByPath(%q) error = %v, want %v", tt.path, err, tt.want)
			}
			if tree.Len() != 1 {
				t.Errorf("Len() = %d, want 1 (nothing created)", tree.Len())
			}
		})
	}
}

func TestFindNodeByPath(t *testing.T) {
	tree := New()
	if _, ok := tree.FindNodeByPath("/x"); ok {
		t.Error("FindNodeByPath found a node that was never created")
	}
	if tree.Len() != 1 {
		t.Errorf("FindNodeByPath created nodes: Len() = %d", tree.Len())
	}

	created, _ := tree.GetNodeByPath("/x/y")
	found, ok := tree.FindNodeByPath("/x/y")
	if !ok || found.ID() != created.ID() {
		t.Errorf("FindNodeByPath = (%v, %v), want node %d", found.ID(), ok, created.ID())
	}
}

func TestReplaceNullNeverDowngrades(t *testing.T) {
	tree := New()
	n, _ := tree.GetNodeByPath("/p/d")

	if !tree.ReplaceNull(n, DeviceElement{DeviceName: "p/d"}) {
		t.Fatal("first ReplaceNull should change the node")
	}
	if tree.ReplaceNull(n, DeviceElement{DeviceName: "p/d", Host: "other"}) {
		t.Error("second ReplaceNull should be a no-op")
	}
	if tree.ReplaceNull(n, InterfaceElement{}) {
		t.Error("ReplaceNull with a different kind should be a no-op")
	}
	if n.Kind() != KindDevice {
		t.Errorf("Kind() = %v, want DEVICE", n.Kind())
	}
	if got := n.Element().(DeviceElement).Host; got != "" {
		t.Errorf("Host = %q, want empty (first assignment wins)", got)
	}
}

func TestSetElementConflict(t *testing.T) {
	tree := New()
	n, _ := tree.GetNodeByPath("/p/d/tracker")

	changed, err := tree.SetElement(n, InterfaceElement{Count: 1})
	if err != nil || !changed {
		t.Fatalf("SetElement = (%v, %v), want (true, nil)", changed, err)
	}
	changed, err = tree.SetElement(n, InterfaceElement{Count: 1})
	if err != nil || changed {
		t.Errorf("identical SetElement = (%v, %v), want (false, nil)", changed, err)
	}
	if _, err := tree.SetElement(n, SensorElement{Number: 0}); !errors.Is(err, ErrConflictingElement) {
		t.Errorf("conflicting SetElement error = %v, want ErrConflictingElement", err)
	}
	if _, err := tree.SetElement(tree.Root(), PluginElement{}); !errors.Is(err, ErrRootElement) {
		t.Errorf("SetElement on root error = %v, want ErrRootElement", err)
	}
}

func TestAddDevice(t *testing.T) {
	tree := New()

	n, changed, err := tree.AddDevice("/plugin/device", DeviceElement{})
	if err != nil {
		t.Fatalf("AddDevice: %v", err)
	}
	if !changed {
		t.Error("changed = false, want true")
	}
	if n.Kind() != KindDevice {
		t.Errorf("Kind() = %v, want DEVICE", n.Kind())
	}
	if got := n.Element().(DeviceElement).DeviceName; got != "plugin/device" {
		t.Errorf("DeviceName = %q, want plugin/device", got)
	}
	parent, ok := n.Parent()
	if !ok || parent.Kind() != KindPlugin {
		t.Errorf("parent kind = %v, want PLUGIN", parent.Kind())
	}

	_, changed, err = tree.AddDevice("plugin/device", DeviceElement{})
	if err != nil || changed {
		t.Errorf("repeated AddDevice = (%v, %v), want (false, nil)", changed, err)
	}
	if n.Kind() != KindDevice {
		t.Errorf("Kind() after repeat = %v, want DEVICE", n.Kind())
	}
}

func TestAddDeviceInvalidName(t *testing.T) {
	for _, name := range []string{"x", "/x", "", "p//d"} {
		tree := New()
		if _, _, err := tree.AddDevice(name, DeviceElement{}); !errors.Is(err, ErrInvalidDeviceName) {
			t.Errorf("AddDevice(%q) error = %v, want ErrInvalidDeviceName", name, err)
		}
	}
}

func TestAddDeviceKeepsTypedPlugin(t *testing.T) {
	tree := New()
	p, _ := tree.GetNodeByPath("/group")
	if _, err := tree.SetElement(p, LogicalElement{}); err != nil {
		t.Fatal(err)
	}

	if _, _, err := tree.AddDevice("/group/dev", DeviceElement{}); err != nil {
		t.Fatal(err)
	}
	if p.Kind() != KindLogical {
		t.Errorf("Kind() = %v, want LOGICAL (never downgraded)", p.Kind())
	}
}

func TestAddAliasPriority(t *testing.T) {
	tree := New()

	changed, err := tree.AddAlias("/me/head", "/p/d/tracker/0", AliasPriorityAutomatic)
	if err != nil || !changed {
		t.Fatalf("AddAlias = (%v, %v), want (true, nil)", changed, err)
	}
	changed, _ = tree.AddAlias("/me/head", "/p/d/tracker/0", AliasPriorityAutomatic)
	if changed {
		t.Error("identical alias should not change the tree")
	}
	changed, _ = tree.AddAlias("/me/head", "/p/d/tracker/1", AliasPriorityManual)
	if !changed {
		t.Error("higher priority alias should replace")
	}
	changed, _ = tree.AddAlias("/me/head", "/p/d/tracker/2", AliasPriorityAutomatic)
	if changed {
		t.Error("lower priority alias should not replace")
	}

	n, _ := tree.FindNodeByPath("/me/head")
	if got := n.Element().(AliasElement).Source; got != "/p/d/tracker/1" {
		t.Errorf("Source = %q, want /p/d/tracker/1", got)
	}

	if _, _, err := tree.AddDevice("/p/d", DeviceElement{}); err != nil {
		t.Fatal(err)
	}
	if _, err := tree.AddAlias("/p/d", "/elsewhere", AliasPriorityManual); !errors.Is(err, ErrConflictingElement) {
		t.Errorf("alias over device error = %v, want ErrConflictingElement", err)
	}
}

func TestAncestor(t *testing.T) {
	tree := New()
	tree.AddDevice("/p/d", DeviceElement{})
	tree.AddInterface("/p/d/tracker", InterfaceElement{Count: 2})
	sensor, _, _ := tree.AddSensor("/p/d/tracker", 1)

	dev, ok := sensor.Ancestor(KindDevice)
	if !ok || dev.FullPath() != "/p/d" {
		t.Errorf("Ancestor(DEVICE) = %q, %v", dev.FullPath(), ok)
	}
	if _, ok := sensor.Ancestor(KindAlias); ok {
		t.Error("Ancestor(ALIAS) should not be found")
	}
}

func TestVisitOrder(t *testing.T) {
	tree := New()
	tree.GetNodeByPath("/a/b")
	tree.GetNodeByPath("/a/c")
	tree.GetNodeByPath("/d")

	var got []string
	tree.Visit(func(n Node) bool {
		got = append(got, n.FullPath())
		return true
	})
	want := "/,/a,/a/b,/a/c,/d"
	if strings.Join(got, ",") != want {
		t.Errorf("Visit order = %v, want %s", got, want)
	}
}

func TestRecordsRoundTrip(t *testing.T) {
	tree := New()
	tree.AddDevice("/p/d", DeviceElement{Host: "localhost", Port: 3883})
	tree.AddInterface("/p/d/button", InterfaceElement{Count: 4})
	tree.AddAlias("/me/hands/left", "/p/d/button/0", AliasPriorityManual)

	data, err := json.Marshal(tree)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var copied Tree
	if err := json.Unmarshal(data, &copied); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	n, ok := copied.FindNodeByPath("/p/d")
	if !ok {
		t.Fatal("/p/d missing after round trip")
	}
	if dev := n.Element().(DeviceElement); dev.Port != 3883 || dev.Host != "localhost" {
		t.Errorf("device = %+v", dev)
	}
	alias, _ := copied.FindNodeByPath("/me/hands/left")
	if alias.Kind() != KindAlias {
		t.Errorf("alias kind = %v", alias.Kind())
	}
	if p, _ := copied.FindNodeByPath("/p"); p.Kind() != KindPlugin {
		t.Errorf("plugin kind = %v", p.Kind())
	}
}

func TestDump(t *testing.T) {
	tree := New()
	tree.AddDevice("/p/d", DeviceElement{})

	var buf bytes.Buffer
	if err := tree.Dump(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "  p [PLUGIN]") || !strings.Contains(out, "    d [DEVICE p/d]") {
		t.Errorf("Dump output:\n%s", out)
	}
}

func TestClone(t *testing.T) {
	tree := New()
	tree.GetNodeByPath("/a")
	c := tree.Clone()
	c.GetNodeByPath("/a/b")

	if _, ok := tree.FindNodeByPath("/a/b"); ok {
		t.Error("clone shares storage with the original")
	}
}

func TestResolveRelative(t *testing.T) {
	tests := []struct{ base, src, want string }{
		{"/p/d/semantic", "../tracker/0", "/p/d/tracker/0"},
		{"/p/d", "tracker", "/p/d/tracker"},
		{"/p/d", "/abs/path/", "/abs/path"},
		{"/", "./x", "/x"},
	}
	for _, tt := range tests {
		if got := ResolveRelative(tt.base, tt.src); got != tt.want {
			t.Errorf("ResolveRelative(%q, %q) = %q, want %q", tt.base, tt.src, got, tt.want)
		}
	}
}
