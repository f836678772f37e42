// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

// Command rodisctl is a small admin CLI that speaks RESP directly to a
// running rodis server, in the shape urfave/cli/v2-based admin tools
// take in the corpus (yndnr-tokmesh-go's tokmesh-cli).
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/garyburd/redigo/redis"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "rodisctl",
		Usage: "administer a rodis server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Aliases: []string{"h"}, Value: "127.0.0.1", Usage: "server host"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 6389, Usage: "server port"},
			&cli.StringFlag{Name: "auth", Aliases: []string{"a"}, Usage: "AUTH password, if the server requires one"},
		},
		Commands: []*cli.Command{
			pingCommand(),
			getCommand(),
			setCommand(),
			delCommand(),
			ttlCommand(),
			expireCommand(),
			keysCommand(),
			typeCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func dial(c *cli.Context) (redis.Conn, error) {
	addr := fmt.Sprintf("%s:%d", c.String("host"), c.Int("port"))
	conn, err := redis.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	if pass := c.String("auth"); pass != "" {
		if _, err := conn.Do("AUTH", pass); err != nil {
			conn.Close()
			return nil, fmt.Errorf("authenticating: %w", err)
		}
	}
	return conn, nil
}

func pingCommand() *cli.Command {
	return &cli.Command{
		Name:  "ping",
		Usage: "check server liveness",
		Action: func(c *cli.Context) error {
			conn, err := dial(c)
			if err != nil {
				return err
			}
			defer conn.Close()
			reply, err := redis.String(conn.Do("PING"))
			if err != nil {
				return err
			}
			fmt.Println(reply)
			return nil
		},
	}
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "fetch the value of a string key",
		ArgsUsage: "KEY",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("get requires exactly one key")
			}
			conn, err := dial(c)
			if err != nil {
				return err
			}
			defer conn.Close()
			reply, err := redis.String(conn.Do("GET", c.Args().Get(0)))
			if err == redis.ErrNil {
				fmt.Println("(nil)")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Println(reply)
			return nil
		},
	}
}

func setCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "set a string key",
		ArgsUsage: "KEY VALUE",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "ex", Usage: "expire after N seconds"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("set requires exactly two arguments")
			}
			conn, err := dial(c)
			if err != nil {
				return err
			}
			defer conn.Close()
			args := []interface{}{c.Args().Get(0), c.Args().Get(1)}
			if ex := c.Int("ex"); ex > 0 {
				args = append(args, "EX", strconv.Itoa(ex))
			}
			reply, err := redis.String(conn.Do("SET", args...))
			if err != nil {
				return err
			}
			fmt.Println(reply)
			return nil
		},
	}
}

func delCommand() *cli.Command {
	return &cli.Command{
		Name:      "del",
		Usage:     "delete one or more keys",
		ArgsUsage: "KEY [KEY ...]",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return fmt.Errorf("del requires at least one key")
			}
			conn, err := dial(c)
			if err != nil {
				return err
			}
			defer conn.Close()
			args := make([]interface{}, c.NArg())
			for i, k := range c.Args().Slice() {
				args[i] = k
			}
			n, err := redis.Int(conn.Do("DEL", args...))
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}
}

func ttlCommand() *cli.Command {
	return &cli.Command{
		Name:      "ttl",
		Usage:     "report the remaining TTL of a key in seconds",
		ArgsUsage: "KEY",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("ttl requires exactly one key")
			}
			conn, err := dial(c)
			if err != nil {
				return err
			}
			defer conn.Close()
			n, err := redis.Int64(conn.Do("TTL", c.Args().Get(0)))
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}
}

func expireCommand() *cli.Command {
	return &cli.Command{
		Name:      "expire",
		Usage:     "set a key's TTL in seconds",
		ArgsUsage: "KEY SECONDS",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("expire requires exactly two arguments")
			}
			conn, err := dial(c)
			if err != nil {
				return err
			}
			defer conn.Close()
			n, err := redis.Int(conn.Do("EXPIRE", c.Args().Get(0), c.Args().Get(1)))
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}
}

func keysCommand() *cli.Command {
	return &cli.Command{
		Name:      "keys",
		Usage:     "list keys matching a pattern",
		ArgsUsage: "PATTERN",
		Action: func(c *cli.Context) error {
			pattern := "*"
			if c.NArg() > 0 {
				pattern = c.Args().Get(0)
			}
			conn, err := dial(c)
			if err != nil {
				return err
			}
			defer conn.Close()
			keys, err := redis.Strings(conn.Do("KEYS", pattern))
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Println(k)
			}
			return nil
		},
	}
}

func typeCommand() *cli.Command {
	return &cli.Command{
		Name:      "type",
		Usage:     "report a key's data type",
		ArgsUsage: "KEY",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("type requires exactly one key")
			}
			conn, err := dial(c)
			if err != nil {
				return err
			}
			defer conn.Close()
			reply, err := redis.String(conn.Do("TYPE", c.Args().Get(0)))
			if err != nil {
				return err
			}
			fmt.Println(reply)
			return nil
		},
	}
}
