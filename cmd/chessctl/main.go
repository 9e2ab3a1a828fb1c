package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/park285/cheese-chess-client/internal/httpapi"
)

func usage() {
	fmt.Fprintln(os.Stderr, strings.Join([]string{
		"usage: chessctl <command>",
		"  state               세션 상태 JSON",
		"  status              시계/기보/결과 텍스트",
		"  match               대국 요청",
		"  again               다시 하기",
		"  move <from> <to> [q|r|b|n]",
		"  board <file.png>    현재 보드 이미지 저장",
	}, "\n"))
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	addr := strings.TrimSpace(os.Getenv("CONTROL_ADDR"))
	if addr == "" {
		addr = "127.0.0.1:8088"
	}
	client := httpapi.NewClient(addr, httpapi.WithTimeout(8*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		out any
		err error
	)
	args := os.Args[2:]
	switch os.Args[1] {
	case "state":
		out, err = client.State(ctx)
	case "status":
		var text string
		text, err = client.Status(ctx)
		if err == nil {
			fmt.Println(text)
			return
		}
	case "match":
		out, err = client.RequestMatch(ctx)
	case "again":
		out, err = client.PlayAgain(ctx)
	case "move":
		if len(args) < 2 {
			usage()
		}
		promo := ""
		if len(args) > 2 {
			promo = args[2]
		}
		out, err = client.Move(ctx, args[0], args[1], promo)
	case "board":
		if len(args) < 1 {
			usage()
		}
		var img []byte
		img, err = client.Board(ctx)
		if err == nil {
			err = os.WriteFile(args[0], img, 0o644)
		}
		if err == nil {
			log.Printf("board saved: %s (%d bytes)", args[0], len(img))
			return
		}
	default:
		usage()
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}
