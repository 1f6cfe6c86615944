// Command cantest pokes a node on the CAN bus: it can push settings, ask the
// node to change configuration and dump whatever comes back.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/CodedInternet/gowl/onboard/canbus"
	"github.com/CodedInternet/gowl/onboard/hardware"
	"github.com/CodedInternet/gowl/onboard/settings"
)

func main() {
	iface := flag.String("iface", "can0", "SocketCAN interface")
	node := flag.Uint("node", 1, "Node id (0-255)")
	push := flag.String("push", "", "Settings to push, e.g. a=1,b=300")
	selectIndex := flag.Int("select", 0, "Config index to select on the node, 0 to skip")
	listen := flag.Duration("listen", 5*time.Second, "How long to dump received frames")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	link := canbus.Open(*iface, canbus.DefaultBitrate, log)
	if !link.Available() {
		os.Exit(1)
	}
	defer link.Stop()

	dir := hardware.NewDirectory(link, log)
	dir.OnSettings(func(n uint8, m settings.Map) {
		fmt.Printf("node %d settings %v\n", n, m)
	})
	dir.OnConfig(func(n uint8, index int) {
		fmt.Printf("node %d requests config %d\n", n, index)
	})

	link.StartReceiving(func(f canbus.Frame) {
		fmt.Println(f)
		dir.OnFrame(f)
	})

	if *push != "" {
		m := settings.Map{}
		for _, kv := range strings.Split(*push, ",") {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) != 2 {
				fmt.Fprintf(os.Stderr, "bad setting %q\n", kv)
				os.Exit(2)
			}
			v, err := strconv.ParseUint(parts[1], 0, 64)
			if err != nil {
				fmt.Fprintf(os.Stderr, "bad value for %s: %v\n", parts[0], err)
				os.Exit(2)
			}
			m[parts[0]] = v
		}
		if err := dir.UpdateNode(uint8(*node), m); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}

	if *selectIndex != 0 {
		if err := dir.SelectConfig(uint8(*node), *selectIndex); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}

	time.Sleep(*listen)
}
