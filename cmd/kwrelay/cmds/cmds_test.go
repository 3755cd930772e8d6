package cmds

import (
	"bytes"
	"context"
	"kwrelay/internal/types"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

type CmdsTestSuite struct {
	suite.Suite

	dir string
}

func TestCmdsTestSuite(t *testing.T) {
	suite.Run(t, new(CmdsTestSuite))
}

func (s *CmdsTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.T().Setenv(EnvEnvFile, filepath.Join(s.dir, "missing.env"))
	s.T().Setenv("DATA_DIR", s.dir)
	for _, key := range []string{types.EnvToken, types.EnvTargetGroup, types.EnvTransport, types.EnvStoreBackend, EnvConfigFile} {
		s.T().Setenv(key, "")
	}
}

func (s *CmdsTestSuite) run(args ...string) (string, error) {
	root := NewRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (s *CmdsTestSuite) TestWordsAddListRemove() {
	out, err := s.run("words", "add", "rocket", "Moon", "rocket")
	s.Require().NoError(err)
	s.Equal("keyword \"rocket\": added\nkeyword \"Moon\": added\nkeyword \"rocket\": already_present\n", out)

	out, err = s.run("words", "list")
	s.Require().NoError(err)
	s.Equal("Moon\nrocket\n", out)

	out, err = s.run("words", "remove", "moon")
	s.Require().NoError(err)
	s.Equal("keyword \"moon\": not_found\n", out)

	b, err := os.ReadFile(filepath.Join(s.dir, types.DefaultKeywordsResource))
	s.Require().NoError(err)
	s.Equal("Moon\nrocket\n", string(b))
}

func (s *CmdsTestSuite) TestUsersAreNormalized() {
	_, err := s.run("users", "add", "@Admin")
	s.Require().NoError(err)

	out, err := s.run("users", "list", "--users-resource", "users.txt")
	s.Require().NoError(err)
	s.Equal("admin\n", out)

	out, err = s.run("users", "remove", "ADMIN")
	s.Require().NoError(err)
	s.Equal("user \"ADMIN\": removed\n", out)
}

func (s *CmdsTestSuite) TestResourceFlag() {
	_, err := s.run("words", "add", "--keywords-resource", "alt.txt", "comet")
	s.Require().NoError(err)
	s.FileExists(filepath.Join(s.dir, "alt.txt"))
	s.NoFileExists(filepath.Join(s.dir, types.DefaultKeywordsResource))
}

func (s *CmdsTestSuite) TestConfigFile() {
	path := filepath.Join(s.dir, "kwrelay.yaml")
	s.Require().NoError(os.WriteFile(path, []byte("keywords_resource: from-yaml.txt\n"), 0o644))

	_, err := s.run("words", "add", "--config", path, "comet")
	s.Require().NoError(err)
	s.FileExists(filepath.Join(s.dir, "from-yaml.txt"))
}

func (s *CmdsTestSuite) TestServeFailsFastWithoutCredentials() {
	_, err := s.run("serve")
	s.ErrorIs(err, types.ErrStartupConfig)

	_, err = s.run("serve", "--token", "123:abc")
	s.ErrorIs(err, types.ErrStartupConfig)

	_, err = s.run("serve", "--group", "-100")
	s.ErrorIs(err, types.ErrStartupConfig)
}

func (s *CmdsTestSuite) TestServeRejectsBadValues() {
	_, err := s.run("serve", "--token", "k", "--group", "-100", "--transport", "carrier-pigeon")
	s.ErrorIs(err, types.ErrStartupConfig)

	_, err = s.run("serve", "--token", "k", "--group", "-100", "--log-level", "loud")
	s.ErrorIs(err, types.ErrStartupConfig)
}

func (s *CmdsTestSuite) TestUnknownStore() {
	_, err := s.run("words", "list", "--store", "floppy")
	s.ErrorIs(err, types.ErrInvalidBackend)
}

func (s *CmdsTestSuite) TestOAuthToken() {
	s.Equal("oauth:abc", oauthToken("abc"))
	s.Equal("oauth:abc", oauthToken("oauth:abc"))
}
