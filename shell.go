package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/CodedInternet/gowl/onboard/config"
	"github.com/CodedInternet/gowl/onboard/settings"
)

// parseSettings turns key=value arguments into a settings map.
func parseSettings(args []string) (settings.Map, error) {
	m := settings.Map{}
	for _, arg := range args {
		kv := strings.SplitN(arg, "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		v, err := strconv.ParseUint(kv[1], 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", kv[0], err)
		}
		m[kv[0]] = v
	}
	return m, nil
}

func parseNode(arg string) (uint8, error) {
	id, err := strconv.ParseUint(arg, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid node id %q", arg)
	}
	return uint8(id), nil
}

// newShell builds the operator shell. Every command works on ENV so the shell
// sees the same sprayer and nodes as the API.
func newShell() *ishell.Shell {
	shell := ishell.New()
	shell.Println("gowl operator shell")
	shell.ShowPrompt(true)

	shell.AddCmd(&ishell.Cmd{
		Name: "createoperator",
		Help: "createoperator <email> <password>",
		Func: func(c *ishell.Context) {
			// disable the '>>>' for cleaner same line input.
			c.ShowPrompt(false)
			defer c.ShowPrompt(true)

			var email string
			if len(c.Args) >= 1 {
				email = c.Args[0]
			} else {
				c.Print("Email: ")
				email = c.ReadLine()
			}

			var password string
			if len(c.Args) >= 2 {
				password = c.Args[1]
			} else {
				c.Print("Password: ")
				password = c.ReadPassword()
			}

			if _, err := createOperator(ENV.DB, email, password); err != nil {
				c.Err(err)
				return
			}
			c.Println("Operator created")
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "config",
		Help: "config <index 1-20>",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Println("usage: config <index>")
				return
			}
			// failures are already logged by the sprayer
			if err := ENV.Sprayer.ChangeConfigArg(c.Args[0]); err != nil {
				c.Err(err)
				return
			}
			c.Printf("Using %s\n", ENV.Config.Load().Name)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "save",
		Help: "save [name]",
		Func: func(c *ishell.Context) {
			var name string
			if len(c.Args) > 0 {
				name = c.Args[0]
			}
			path, err := ENV.Store.Save(ENV.Config.Load(), name)
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("Saved to %s\n", path)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "push",
		Help: "push <node> <key=value>...",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Println("usage: push <node> <key=value>...")
				return
			}
			node, err := parseNode(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			m, err := parseSettings(c.Args[1:])
			if err != nil {
				c.Err(err)
				return
			}
			if err := ENV.Nodes.UpdateNode(node, m); err != nil {
				c.Err(err)
				return
			}
			c.Printf("Pushed %v to node %d\n", m, node)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "select",
		Help: "select <node> <index>",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 2 {
				c.Println("usage: select <node> <index>")
				return
			}
			node, err := parseNode(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			index, err := config.ParseIndex(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			if err := ENV.Nodes.SelectConfig(node, index); err != nil {
				c.Err(err)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "nodes",
		Help: "list known CAN nodes and their settings",
		Func: func(c *ishell.Context) {
			for _, id := range ENV.Nodes.Nodes() {
				m, _ := ENV.Nodes.Settings(id)
				c.Printf("%3d %v\n", id, m)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "state",
		Help: "show the sprayer status",
		Func: func(c *ishell.Context) {
			st := ENV.Sprayer.Status()
			c.Printf("running=%v config=%s algorithm=%s frames=%d commands=%d\n",
				st.Running, st.Config, st.Algorithm, st.Frames, st.Commands)
			c.Printf("detection=%v sampling=%v stop=%v\n",
				st.Flags.Detection, st.Flags.Sampling, st.Flags.Stop)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "stop",
		Help: "ask the frame loop to stop",
		Func: func(c *ishell.Context) {
			ENV.State.RequestStop()
		},
	})

	return shell
}
