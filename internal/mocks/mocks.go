// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"github.com/stretchr/testify/mock"
)

// -- Browser Driver Mock --

// MockDriver mocks the schemas.Driver interface.
type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) Navigate(ctx context.Context, url string, opts schemas.NavigateOptions) error {
	return m.Called(ctx, url, opts).Error(0)
}
func (m *MockDriver) Reload(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *MockDriver) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
func (m *MockDriver) Inspect(ctx context.Context, selector string) (*schemas.ElementInfo, error) {
	args := m.Called(ctx, selector)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.ElementInfo), args.Error(1)
}
func (m *MockDriver) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	args := m.Called(ctx, selector, name)
	return args.String(0), args.Bool(1), args.Error(2)
}
func (m *MockDriver) Text(ctx context.Context, selector string) (string, error) {
	args := m.Called(ctx, selector)
	return args.String(0), args.Error(1)
}
func (m *MockDriver) OuterHTML(ctx context.Context, selector string) (string, error) {
	args := m.Called(ctx, selector)
	return args.String(0), args.Error(1)
}
func (m *MockDriver) Click(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}
func (m *MockDriver) SetValue(ctx context.Context, selector, value string) error {
	return m.Called(ctx, selector, value).Error(0)
}
func (m *MockDriver) SetFiles(ctx context.Context, selector string, files []string) error {
	return m.Called(ctx, selector, files).Error(0)
}
func (m *MockDriver) DispatchMouse(ctx context.Context, ev schemas.MouseEventData) error {
	return m.Called(ctx, ev).Error(0)
}
func (m *MockDriver) PressKey(ctx context.Context, key string, modifiers schemas.KeyModifier) error {
	return m.Called(ctx, key, modifiers).Error(0)
}
func (m *MockDriver) TypeText(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}
func (m *MockDriver) Evaluate(ctx context.Context, script string, result interface{}) error {
	return m.Called(ctx, script, result).Error(0)
}
func (m *MockDriver) InjectScript(ctx context.Context, script string) error {
	return m.Called(ctx, script).Error(0)
}
func (m *MockDriver) Close(ctx context.Context) error { return m.Called(ctx).Error(0) }

// -- Launcher Mock --

// MockLauncher mocks session.Launcher.
type MockLauncher struct {
	mock.Mock
}

func (m *MockLauncher) Launch(ctx context.Context, cfg schemas.SessionConfig) (schemas.Driver, error) {
	args := m.Called(ctx, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(schemas.Driver), args.Error(1)
}

func (m *MockLauncher) Attach(ctx context.Context, endpoint string) (schemas.Driver, error) {
	args := m.Called(ctx, endpoint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(schemas.Driver), args.Error(1)
}

// -- Report Store Mock --

// MockStore mocks the run report persistence used by the engine.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) PersistReport(ctx context.Context, report schemas.RunReport) error {
	return m.Called(ctx, report).Error(0)
}
