package target

import (
	"time"

	"github.com/joeycumines/castrec/internal/script"
)

type builtinTarget struct {
	name    string
	command string
	size    Size
	actions []script.Action
}

// quitAfter watches for d and then presses q.
func quitAfter(d time.Duration) []script.Action {
	return []script.Action{script.Wait(d), script.Send(0, "q")}
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

var builtinTargets = []builtinTarget{
	{
		name:    "example1",
		command: "go run cmd/example1_hello/main.go",
		size:    DefaultSize,
		actions: quitAfter(3 * time.Second),
	},
	{
		name:    "example2",
		command: "go run cmd/example2_counter/main.go",
		size:    DefaultSize,
		actions: quitAfter(4 * time.Second),
	},
	{
		name:    "example3",
		command: "go run cmd/example3_computed/main.go",
		size:    DefaultSize,
		actions: quitAfter(4 * time.Second),
	},
	{
		name:    "example4",
		command: "go run cmd/example4_clock/main.go",
		size:    DefaultSize,
		actions: quitAfter(4 * time.Second),
	},
	{
		name:    "example5",
		command: "go run cmd/example5_progress/main.go",
		size:    DefaultSize,
		actions: quitAfter(6 * time.Second),
	},
	{
		name:    "example6",
		command: "go run cmd/example6_conditional/main.go",
		size:    DefaultSize,
		actions: quitAfter(6 * time.Second),
	},
	{
		name:    "example7",
		command: "go run cmd/example7_input/main.go",
		size:    DefaultSize,
		actions: []script.Action{
			script.Wait(ms(1500)),
			script.Send(ms(300), script.Right), script.Send(ms(300), script.Right), script.Send(ms(300), script.Right),
			script.Send(ms(500), script.Down), script.Send(ms(300), script.Down),
			script.Send(ms(500), script.Left), script.Send(ms(300), script.Left),
			script.Send(ms(500), script.Up),
			script.Send(time.Second, "q"),
		},
	},
	{
		name:    "example8",
		command: "go run cmd/example8_textinput/main.go",
		size:    DefaultSize,
		actions: script.Concat(
			[]script.Action{script.Wait(ms(1500))},
			script.Type(ms(80), "Hello, BasementUI!"),
			[]script.Action{script.Wait(ms(1500))},
			script.Repeat(5, script.Send(ms(150), script.Backspace)),
			[]script.Action{script.Wait(ms(800))},
			script.Type(ms(80), "World!"),
			[]script.Action{script.Wait(ms(1500)), script.Send(0, script.Escape)},
		),
	},
	{
		name:    "example9",
		command: "go run cmd/example9_list/main.go",
		size:    DefaultSize,
		actions: []script.Action{
			script.Wait(ms(1500)),
			script.Send(ms(400), script.Down), script.Send(ms(400), script.Down), script.Send(ms(400), script.Down),
			script.Send(ms(500), script.Up), script.Send(ms(300), script.Up),
			script.Send(ms(500), script.Down), script.Send(ms(300), script.Down), script.Send(ms(300), script.Down),
			script.Send(ms(500), script.Enter),
		},
	},
	{
		name:    "example10",
		command: "go run cmd/example10_layout/main.go",
		size:    LargeSize,
		actions: []script.Action{
			script.Wait(2 * time.Second),
			script.Send(ms(400), script.Down), script.Send(ms(400), script.Down), script.Send(ms(400), script.Down),
			script.Send(ms(500), script.Up), script.Send(ms(300), script.Up), script.Send(ms(300), script.Up),
			script.Send(time.Second, "q"),
		},
	},
	{
		name:    "example11",
		command: "go run cmd/example11_markdown/main.go",
		size:    LargeSize,
		actions: script.Concat(
			[]script.Action{script.Wait(2 * time.Second)},
			script.Repeat(10, script.Send(ms(150), script.Down)),
			[]script.Action{script.Wait(time.Second)},
			script.Repeat(10, script.Send(ms(150), script.Up)),
			[]script.Action{script.Send(time.Second, "q")},
		),
	},
	{
		name:    "example12",
		command: "go run -tags chroma cmd/example12_chroma/main.go",
		size:    LargeSize,
		actions: script.Concat(
			[]script.Action{script.Wait(3 * time.Second)},
			script.Repeat(5, script.Send(ms(200), script.Down)),
			[]script.Action{script.Wait(time.Second)},
			script.Repeat(5, script.Send(ms(200), script.Up)),
			[]script.Action{script.Send(time.Second, "q")},
		),
	},
}

// Builtin returns a registry of the bundled example programs.
func Builtin() *Registry {
	r := NewRegistry()
	for _, b := range builtinTargets {
		src, err := ParseGoCommand(b.command)
		if err != nil {
			panic(err)
		}
		if err := r.Add(Target{
			Name:   b.name,
			Source: src,
			Size:   b.size,
			Script: script.MustNew(b.actions...),
		}); err != nil {
			panic(err)
		}
	}
	return r
}
