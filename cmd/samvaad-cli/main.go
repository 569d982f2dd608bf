// Command samvaad-cli issues one-shot requests against a running
// samvaad-server: health probes, direct translations, and conversation
// submissions.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "samvaad-cli: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		printUsage(stdout)
		return fmt.Errorf("a command is required")
	}

	switch args[0] {
	case "health":
		return runHealth(args[1:], stdout)
	case "translate":
		return runTranslate(args[1:], stdout)
	case "submit":
		return runSubmit(args[1:], stdout)
	case "messages":
		return runMessages(args[1:], stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		printUsage(stdout)
		return fmt.Errorf("unsupported command %q", args[0])
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: samvaad-cli <command> [flags]")
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  health                         probe the provider through the server")
	fmt.Fprintln(w, "  translate -text -source -target  run one request through the pipeline")
	fmt.Fprintln(w, "  submit -sender -lang -text       submit to the conversation")
	fmt.Fprintln(w, "  messages                       print the conversation log")
}

func runHealth(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	addr := fs.String("addr", "http://localhost:8080", "server base URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return getJSON(*addr+"/health", stdout)
}

func runTranslate(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("translate", flag.ContinueOnError)
	addr := fs.String("addr", "http://localhost:8080", "server base URL")
	text := fs.String("text", "", "text to translate")
	audio := fs.String("audio", "", "base64 wav payload")
	source := fs.String("source", "hi", "source language code")
	target := fs.String("target", "en", "target language code")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return postJSON(*addr+"/translate", map[string]any{
		"text":        *text,
		"audioBase64": *audio,
		"sourceLang":  *source,
		"targetLang":  *target,
	}, stdout)
}

func runSubmit(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	addr := fs.String("addr", "http://localhost:8080", "server base URL")
	text := fs.String("text", "", "text to submit")
	audio := fs.String("audio", "", "base64 wav payload")
	lang := fs.String("lang", "hi", "sender's language code")
	sender := fs.String("sender", "citizen", "citizen or officer")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return postJSON(*addr+"/messages", map[string]any{
		"text":        *text,
		"audioBase64": *audio,
		"language":    *lang,
		"sender":      *sender,
	}, stdout)
}

func runMessages(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("messages", flag.ContinueOnError)
	addr := fs.String("addr", "http://localhost:8080", "server base URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return getJSON(*addr+"/messages", stdout)
}

var httpClient = &http.Client{Timeout: 2 * time.Minute}

func getJSON(url string, stdout io.Writer) error {
	resp, err := httpClient.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp, stdout)
}

func postJSON(url string, body map[string]any, stdout io.Writer) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := httpClient.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp, stdout)
}

func printResponse(resp *http.Response, stdout io.Writer) error {
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, payload, "", "  "); err != nil {
		pretty.Write(payload)
	}
	fmt.Fprintln(stdout, pretty.String())

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	return nil
}
