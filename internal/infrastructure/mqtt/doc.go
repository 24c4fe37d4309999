// Package mqtt provides MQTT connectivity for the handset agent.
//
// The agent publishes, it does not consume: a retained status document per
// device and a stream of lifecycle events, so dashboards and the master can
// follow attach/detach activity without polling the agent.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Last Will and Testament (LWT) on the agent status topic
//   - Publishing with QoS and payload validation
//   - Connection health monitoring
//
// # Topic layout
//
//	handsetagent/agent/{agent_id}/status        retained, LWT
//	handsetagent/device/{serial}/status         retained device record
//	handsetagent/device/{serial}/event/{type}   lifecycle events
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Agent.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.DeviceStatus("R58M123ABC")
//	err = client.Publish(topic, payload, client.QoS(), true)
package mqtt
