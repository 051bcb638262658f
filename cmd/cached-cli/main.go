package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ajesipow/cached/internal/client"
	"github.com/ajesipow/cached/internal/protocol"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:7878", "server address")
	flag.Parse()

	c, err := client.Dial(*addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	if flag.NArg() > 0 {
		if err := runCommand(c, flag.Args()); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		return
	}

	in := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := in.ReadString('\n')
		if err != nil {
			return
		}
		args := strings.Fields(strings.TrimSpace(line))
		if len(args) == 0 {
			continue
		}
		if strings.EqualFold(args[0], "QUIT") || strings.EqualFold(args[0], "EXIT") {
			return
		}
		if err := runCommand(c, args); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
	}
}

func runCommand(c *client.Client, args []string) error {
	var (
		resp protocol.Response
		err  error
	)
	switch strings.ToUpper(args[0]) {
	case "GET":
		if len(args) != 2 {
			return fmt.Errorf("usage: GET key")
		}
		resp, err = c.Get(args[1])
	case "SET":
		switch len(args) {
		case 3:
			resp, err = c.Set(args[1], []byte(args[2]))
		case 4:
			secs, perr := strconv.ParseUint(args[3], 10, 32)
			if perr != nil {
				return fmt.Errorf("invalid ttl %q", args[3])
			}
			resp, err = c.SetTTL(args[1], []byte(args[2]), time.Duration(secs)*time.Second)
		default:
			return fmt.Errorf("usage: SET key value [ttl_seconds]")
		}
	case "DELETE", "DEL":
		if len(args) != 2 {
			return fmt.Errorf("usage: DELETE key")
		}
		resp, err = c.Delete(args[1])
	case "EXISTS":
		if len(args) != 2 {
			return fmt.Errorf("usage: EXISTS key")
		}
		resp, err = c.Exists(args[1])
	case "PING":
		resp, err = c.Ping()
	case "FLUSH":
		resp, err = c.Flush()
	case "STATS":
		resp, err = c.Stats()
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	if err != nil {
		return err
	}
	printResponse(resp)
	return nil
}

func printResponse(resp protocol.Response) {
	if len(resp.Value) > 0 {
		fmt.Printf("%s %s\n", resp.Status, string(resp.Value))
		return
	}
	fmt.Println(resp.Status)
}
