// Command dbusping authenticates to the session bus, sends Hello, and
// prints the unique bus name the daemon assigned. It exists to exercise the
// dbus and transport packages end to end; the sans-I/O core it drives has
// no CLI surface of its own.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"dbuscore/dbus"
	"dbuscore/transport"
)

func main() {
	app := cli.NewApp()
	app.Name = "dbusping"
	app.Usage = "say Hello to the session bus and print the assigned unique name"
	app.Version = "0.1.0"
	app.Commands = []cli.Command{
		{
			Name:   "ping",
			Usage:  "connect, authenticate, send Hello",
			Action: runPing,
		},
		{
			Name:   "names",
			Usage:  "connect and list all names currently on the bus",
			Action: runNames,
		},
	}
	if err := app.Run(os.Args); err != nil {
		printFatal(err)
	}
}

func printFatal(err error) {
	color.New(color.FgRed).Fprintf(os.Stderr, "dbusping: fatal: %v\n", err)
	os.Exit(1)
}

func dialAndAuthenticate() (*dbus.Connection, *transport.Blocking, error) {
	addr, err := transport.SessionBusAddress()
	if err != nil {
		return nil, nil, err
	}
	sock, err := transport.DialBlocking(addr)
	if err != nil {
		return nil, nil, err
	}

	conn := dbus.NewConnection(strconv.Itoa(os.Getuid()))
	for !conn.Ready() {
		if _, err := sock.Step(conn); err != nil {
			sock.Close()
			return nil, nil, err
		}
	}
	logrus.WithField("guid", conn.GUID().String()).Info("authenticated")
	return conn, sock, nil
}

func runPing(c *cli.Context) error {
	conn, sock, err := dialAndAuthenticate()
	if err != nil {
		return err
	}
	defer sock.Close()

	serial, err := conn.Enqueue(dbus.Hello())
	if err != nil {
		return err
	}
	for {
		reply, err := drainReply(conn, sock, serial)
		if err != nil {
			return err
		}
		if reply != nil {
			var name dbus.Value
			if err := dbus.ReplyBody(*reply, &name); err != nil {
				return err
			}
			color.New(color.FgGreen).Printf("unique name: %s\n", name.Str)
			return nil
		}
	}
}

func runNames(c *cli.Context) error {
	conn, sock, err := dialAndAuthenticate()
	if err != nil {
		return err
	}
	defer sock.Close()

	if _, err := conn.Enqueue(dbus.Hello()); err != nil {
		return err
	}
	serial, err := conn.Enqueue(dbus.ListNames())
	if err != nil {
		return err
	}
	for {
		events, err := sock.Step(conn)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if ev.Kind == dbus.EventReply && ev.Message.ReplySerial == serial {
				printNames(ev.Message)
				return nil
			}
		}
	}
}

func printNames(reply dbus.Message) {
	if len(reply.Body) != 1 {
		return
	}
	for _, v := range reply.Body[0].Array {
		fmt.Println(v.Str)
	}
}

// drainReply performs one Step and, if it produced the reply matching
// serial, returns the reply message; otherwise nil.
func drainReply(conn *dbus.Connection, sock *transport.Blocking, serial uint32) (*dbus.Message, error) {
	events, err := sock.Step(conn)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if ev.Kind == dbus.EventReply && ev.Message.ReplySerial == serial {
			m := ev.Message
			return &m, nil
		}
	}
	return nil, nil
}
