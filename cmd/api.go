package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/desertthunder/gpyt/internal/services"
	"github.com/desertthunder/gpyt/internal/shared"
	"github.com/urfave/cli/v3"
)

// apiService builds a raw client for the host named by --host, authorized like the typed services.
func (r *Runner) apiService(ctx context.Context, cmd *cli.Command) (*services.APIService, error) {
	host := cmd.String("host")
	override := r.photosURL
	if host == "youtube" {
		override = r.youtubeURL
	}
	baseURL, err := services.HostURL(host, override)
	if err != nil {
		return nil, err
	}

	client, err := r.googleClient(ctx)
	if err != nil {
		return nil, err
	}
	return services.NewAPIService(baseURL, client), nil
}

// APIGet makes a direct GET request to a Google API
func (r *Runner) APIGet(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		return fmt.Errorf("%w: path", shared.ErrMissingArgument)
	}

	api, err := r.apiService(ctx, cmd)
	if err != nil {
		return err
	}

	r.logger.Info("GET request", "host", cmd.String("host"), "path", path)

	resp, err := api.Get(ctx, path)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	return r.writeResponse(resp, cmd.Bool("pretty"))
}

// APIPost makes a direct POST request with a JSON body
func (r *Runner) APIPost(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	data := cmd.String("data")
	if path == "" {
		return fmt.Errorf("%w: path", shared.ErrMissingArgument)
	}
	if data == "" {
		return fmt.Errorf("%w: --data flag is required", shared.ErrMissingArgument)
	}

	var jsonTest any
	if err := json.Unmarshal([]byte(data), &jsonTest); err != nil {
		return fmt.Errorf("%w: data is not valid JSON: %v", shared.ErrInvalidInput, err)
	}

	api, err := r.apiService(ctx, cmd)
	if err != nil {
		return err
	}

	r.logger.Info("POST request", "host", cmd.String("host"), "path", path)

	resp, err := api.Post(ctx, path, []byte(data))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	return r.writeResponse(resp, true)
}

func (r *Runner) writeResponse(resp *services.APIResponse, pretty bool) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d, body: %s", shared.ErrAPIRequest, resp.StatusCode, string(resp.Body))
	}

	if resp.IsJSON {
		return r.writeJSON(resp.JSONData, pretty)
	}

	r.output.Write(resp.Body)
	r.output.Write([]byte("\n"))
	return nil
}
