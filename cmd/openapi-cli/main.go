/*
The openapi-cli command issues signed calls to the entity API.

Usage:

	openapi-cli [flags] list <table> [field=value ...]
	openapi-cli [flags] get <table> <id>
	openapi-cli [flags] create <table> <json>
	openapi-cli [flags] update <table> <id> <json>
	openapi-cli [flags] delete <table> <id>

Credentials are read from OPENAPI_BASE_URL, OPENAPI_APP_ID and OPENAPI_APP_SECRET. If
OPENAPI_GRPC_ADDR is set, list and get are issued over gRPC instead.
*/
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/tidwall/pretty"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/golden-vcr/openapi-go/client"
	"github.com/golden-vcr/openapi-go/gateway"
	"github.com/golden-vcr/openapi-go/hmac"
)

type Config struct {
	BaseURL   string        `envconfig:"OPENAPI_BASE_URL" default:"http://localhost:5010"`
	AppId     string        `envconfig:"OPENAPI_APP_ID" required:"true"`
	AppSecret string        `envconfig:"OPENAPI_APP_SECRET" required:"true"`
	Timeout   time.Duration `envconfig:"OPENAPI_TIMEOUT" default:"30s"`
	GrpcAddr  string        `envconfig:"OPENAPI_GRPC_ADDR"`
}

func main() {
	page := flag.Int("page", 0, "page number to list")
	pageSize := flag.Int("page-size", 0, "number of records per page")
	flag.Parse()

	config := Config{}
	if err := envconfig.Process("", &config); err != nil {
		fail(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	args := flag.Args()
	if len(args) < 2 {
		flag.Usage()
		os.Exit(2)
	}
	command, table, rest := args[0], args[1], args[2:]

	var out []byte
	var err error
	if config.GrpcAddr != "" && (command == "list" || command == "get") {
		out, err = runGRPC(ctx, &config, command, table, rest, *page, *pageSize)
	} else {
		out, err = runHTTP(ctx, &config, command, table, rest, *page, *pageSize)
	}
	if err != nil {
		fail(err)
	}
	os.Stdout.Write(pretty.Pretty(out))
}

func runHTTP(ctx context.Context, config *Config, command, table string, args []string, page, pageSize int) ([]byte, error) {
	c, err := client.NewClient(client.Config{
		BaseURL:   config.BaseURL,
		AppId:     config.AppId,
		AppSecret: config.AppSecret,
		Timeout:   config.Timeout,
	})
	if err != nil {
		return nil, err
	}

	var res *client.Response
	switch command {
	case "list":
		filters, err := parseFilters(args)
		if err != nil {
			return nil, err
		}
		res, err = c.List(ctx, table, client.ListParams{Page: page, PageSize: pageSize, Filters: filters})
		if err != nil {
			return nil, err
		}
	case "get", "delete":
		id, err := parseId(args, 1)
		if err != nil {
			return nil, err
		}
		if command == "get" {
			res, err = c.Get(ctx, table, id)
		} else {
			res, err = c.Delete(ctx, table, id)
		}
		if err != nil {
			return nil, err
		}
	case "create":
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: create <table> <json>")
		}
		res, err = c.Create(ctx, table, json.RawMessage(args[0]))
		if err != nil {
			return nil, err
		}
	case "update":
		id, err := parseId(args, 2)
		if err != nil {
			return nil, err
		}
		res, err = c.Update(ctx, table, id, json.RawMessage(args[1]))
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown command '%s'", command)
	}

	if next, ok := res.NextPage(); ok {
		fmt.Fprintf(os.Stderr, "more results: -page %d\n", next)
	}
	return json.Marshal(res)
}

func runGRPC(ctx context.Context, config *Config, command, table string, args []string, page, pageSize int) ([]byte, error) {
	cred, err := hmac.NewCredential(config.AppId, config.AppSecret)
	if err != nil {
		return nil, err
	}
	conn, err := grpc.NewClient(config.GrpcAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(hmac.UnaryClientInterceptor(hmac.NewSigner(cred))),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", config.GrpcAddr, err)
	}
	defer conn.Close()
	c := gateway.NewEntitiesClient(conn)

	ctx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	var out *structpb.Struct
	switch command {
	case "list":
		filters, err := parseFilters(args)
		if err != nil {
			return nil, err
		}
		in := map[string]any{"table": table, "page": page, "pageSize": pageSize}
		if len(filters) > 0 {
			f := make(map[string]any, len(filters))
			for k, v := range filters {
				f[k] = v
			}
			in["filters"] = f
		}
		req, err := structpb.NewStruct(in)
		if err != nil {
			return nil, &hmac.EncodingError{Err: err}
		}
		if out, err = c.List(ctx, req); err != nil {
			return nil, err
		}
	case "get":
		id, err := parseId(args, 1)
		if err != nil {
			return nil, err
		}
		req, err := structpb.NewStruct(map[string]any{"table": table, "id": id})
		if err != nil {
			return nil, &hmac.EncodingError{Err: err}
		}
		if out, err = c.Get(ctx, req); err != nil {
			return nil, err
		}
	}
	return protojson.Marshal(out)
}

func parseFilters(args []string) (map[string]string, error) {
	filters := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("filter '%s' is not in the form field=value", arg)
		}
		filters[k] = v
	}
	return filters, nil
}

func parseId(args []string, wantArgs int) (int64, error) {
	if len(args) != wantArgs {
		return 0, fmt.Errorf("expected %d argument(s) after the table name", wantArgs)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id '%s'", args[0])
	}
	return id, nil
}

func fail(err error) {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		fmt.Fprintf(os.Stderr, "%s (HTTP %d): %s\n", apiErr.Code, apiErr.StatusCode, apiErr.Message)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
