package navigation

import "fmt"

// Commands is the command surface offered to input layers. Failures are
// reported through the Notifier and never returned.
type Commands interface {
	SetHangingProtocol(Params) bool
	ToggleHangingProtocol(Params) bool
	NextStage() bool
	PreviousStage() bool
	SetViewportGridLayout(rows, cols int)
}

var _ Commands = (*Controller)(nil)

const (
	titleApply  = "Apply Hanging Protocol"
	titleStage  = "Change Stage"
	titleLayout = "Change Layout"
)

// SetHangingProtocol applies p and reports whether it succeeded.
func (c *Controller) SetHangingProtocol(p Params) bool {
	if err := c.Apply(p); err != nil {
		c.fail(titleApply, err)
		return false
	}
	return true
}

// ToggleHangingProtocol toggles p.ProtocolID at p.StageIndex.
func (c *Controller) ToggleHangingProtocol(p Params) bool {
	if err := c.Toggle(p.ProtocolID, p.StageIndex); err != nil {
		c.fail(titleApply, err)
		return false
	}
	return true
}

// NextStage moves forward to the next stage that is not disabled.
func (c *Controller) NextStage() bool {
	return c.stageCommand(1)
}

// PreviousStage moves back to the previous stage that is not disabled.
func (c *Controller) PreviousStage() bool {
	return c.stageCommand(-1)
}

func (c *Controller) stageCommand(dir int) bool {
	moved, err := c.DeltaStage(dir)
	if err != nil {
		c.fail(titleApply, err)
		return false
	}
	if !moved {
		c.notifier.Show(Notification{
			Title:    titleStage,
			Message:  "The hanging protocol has no more applicable stages",
			Type:     NotifyInfo,
			Duration: notificationDuration,
		})
	}
	return moved
}

// SetViewportGridLayout resizes the grid.
func (c *Controller) SetViewportGridLayout(rows, cols int) {
	if err := c.Resize(rows, cols); err != nil {
		c.fail(titleLayout, err)
	}
}

func (c *Controller) fail(title string, err error) {
	msg := fmt.Sprintf("The hanging protocol could not be applied due to %v", err)
	if title == titleLayout {
		msg = fmt.Sprintf("The layout could not be changed due to %v", err)
	}
	c.notifier.Show(Notification{
		Title:    title,
		Message:  msg,
		Type:     NotifyError,
		Duration: notificationDuration,
	})
}
