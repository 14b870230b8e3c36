package router

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/oid4vci-issuer/pkg/server/framework"
)

const (
	NameParam   = "name"
	contextsExt = ".json"
)

// ContextRouter serves the JSON-LD context documents of a directory, keyed by file name without extension.
type ContextRouter struct {
	documents map[string]any
}

// NewContextRouter reads every .json document in dir once. An empty dir serves nothing.
func NewContextRouter(dir string) (*ContextRouter, error) {
	documents := make(map[string]any)
	if dir == "" {
		return &ContextRouter{documents: documents}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading contexts directory: %s", dir)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != contextsExt {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "reading context: %s", entry.Name())
		}
		var document map[string]any
		if err = json.Unmarshal(contents, &document); err != nil {
			return nil, errors.Wrapf(err, "parsing context: %s", entry.Name())
		}
		ldContext, ok := document["@context"]
		if !ok {
			logrus.Warnf("skipping context<%s> without an @context", entry.Name())
			continue
		}
		documents[strings.TrimSuffix(entry.Name(), contextsExt)] = ldContext
	}
	return &ContextRouter{documents: documents}, nil
}

// Names lists the served context names.
func (cr ContextRouter) Names() []string {
	names := make([]string, 0, len(cr.documents))
	for name := range cr.documents {
		names = append(names, name)
	}
	return names
}

func (cr ContextRouter) GetContext(c *gin.Context) {
	name := framework.GetParam(c, NameParam)
	if name == nil {
		framework.LoggingRespondErrMsg(c, "cannot get context without a name", http.StatusBadRequest)
		return
	}

	document, ok := cr.documents[strings.TrimSuffix(*name, contextsExt)]
	if !ok {
		_ = c.Error(framework.NewRequestError(errors.Errorf("context not found: %s", *name), http.StatusNotFound))
		return
	}
	framework.Respond(c, gin.H{"@context": document}, http.StatusOK)
}
